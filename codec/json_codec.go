package codec

import (
	"encoding/json"
	"io"
)

// JSONCodec is the default codec: readable on the wire and understood by
// every peer, at the cost of size and speed next to CBOR.
//
// A json.Encoder terminates every value with '\n' and a json.Decoder stops at the
// end of one value, so the stream form needs no length prefix.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

func (c *JSONCodec) NewEncoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

func (c *JSONCodec) NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
