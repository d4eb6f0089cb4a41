package message

import (
	"errors"
	"testing"

	"duty/codec"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func TestReplyRoundTrip(t *testing.T) {
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeCBOR} {
		c := codec.GetCodec(ct)

		data, err := c.Encode(OK(addArgs{A: 1, B: 2}))
		if err != nil {
			t.Fatalf("%v: encode failed: %v", ct, err)
		}
		var got Reply[addArgs]
		if err := c.Decode(data, &got); err != nil {
			t.Fatalf("%v: decode failed: %v", ct, err)
		}
		if got.Failed() || got.Value != (addArgs{A: 1, B: 2}) {
			t.Fatalf("%v: unexpected reply %+v", ct, got)
		}
	}
}

func TestFailedReply(t *testing.T) {
	c := codec.GetCodec(codec.CodecTypeJSON)

	data, err := c.Encode(Fail[bool](errors.New("division by zero")))
	if err != nil {
		t.Fatal(err)
	}
	var got Reply[bool]
	if err := c.Decode(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Failed() || got.Error != "division by zero" {
		t.Fatalf("unexpected reply %+v", got)
	}

	if !Fail[int](nil).Failed() {
		t.Fatal("Fail(nil) must still be a failure")
	}
}

// An empty response type still round trips; error-only operations use it.
func TestEmptyValue(t *testing.T) {
	c := codec.GetCodec(codec.CodecTypeCBOR)
	data, err := c.Encode(OK(struct{}{}))
	if err != nil {
		t.Fatal(err)
	}
	var got Reply[struct{}]
	if err := c.Decode(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Failed() {
		t.Fatalf("unexpected failure %q", got.Error)
	}
}
