package transport

import (
	"bytes"
	"io"

	"duty/codec"
	"duty/rpcerr"
)

// Stream writes values straight onto the byte stream with a self-delimiting
// codec. It has no header, so either end can send first and both ends use the
// same type.
type Stream struct {
	rw    io.ReadWriteCloser
	codec codec.StreamCodec
	dec   codec.Decoder
	buf   bytes.Buffer
}

func NewStream(rw io.ReadWriteCloser, ct codec.CodecType) *Stream {
	c := codec.GetCodec(ct)
	return &Stream{rw: rw, codec: c, dec: c.NewDecoder(rw)}
}

// Send encodes into a buffer first so an encode failure never leaves half a
// value on the stream, then writes it in one call.
func (s *Stream) Send(v any) error {
	s.buf.Reset()
	if err := s.codec.NewEncoder(&s.buf).Encode(v); err != nil {
		return rpcerr.New(rpcerr.KindEncode, "send", err)
	}
	if _, err := s.rw.Write(s.buf.Bytes()); err != nil {
		return rpcerr.New(rpcerr.KindSend, "send", err)
	}
	return nil
}

func (s *Stream) Receive(v any) error {
	if err := s.dec.Decode(v); err != nil {
		return receiveError(err)
	}
	return nil
}

func (s *Stream) Close() error {
	return s.rw.Close()
}
