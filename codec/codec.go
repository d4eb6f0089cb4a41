package codec

import (
	"fmt"
	"io"
)

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeCBOR CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeCBOR:
		return "cbor"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

// Codec turns one value into one self-contained body and back. Used by the
// framed transport, where the frame header carries the body length.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=CBOR
}

// Encoder writes a self-delimiting value straight to a stream.
type Encoder interface {
	Encode(v any) error
}

// Decoder reads exactly one value written by the matching Encoder.
type Decoder interface {
	Decode(v any) error
}

// StreamCodec is a Codec whose encoding is self-delimiting, so it can run
// directly over a byte stream without extra framing.
type StreamCodec interface {
	Codec
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r io.Reader) Decoder
}

// Known reports whether b names a codec this build understands.
func Known(b byte) bool {
	return CodecType(b) == CodecTypeJSON || CodecType(b) == CodecTypeCBOR
}

func GetCodec(codecType CodecType) StreamCodec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &CBORCodec{}
}

// Parse maps a codec name from configuration to its type.
func Parse(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "cbor":
		return CodecTypeCBOR, nil
	}
	return 0, fmt.Errorf("unknown codec %q", name)
}
