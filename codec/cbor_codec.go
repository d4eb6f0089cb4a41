package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec is the compact binary codec (RFC 8949). Every CBOR data item carries
// its own length, which makes it self-delimiting on a stream. Struct fields are
// named by their "cbor" tag, falling back to the "json" tag.
type CBORCodec struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	if cborEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if cborDec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}

func (c *CBORCodec) NewEncoder(w io.Writer) Encoder {
	return cborEnc.NewEncoder(w)
}

func (c *CBORCodec) NewDecoder(r io.Reader) Decoder {
	return cborDec.NewDecoder(r)
}
