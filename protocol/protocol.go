// Package protocol implements the length-prefixed frame used by the framed
// transports.
//
// A frame is a fixed 14-byte header followed by a variable-length body. The
// receiver reads the header first to learn the body length, then reads exactly
// that many bytes, so one Encode on the writer is always one Decode on the reader.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ dty  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"io"

	pkgerr "github.com/pkg/errors"
)

// Magic bytes "dty". A peer speaking anything else (an HTTP client on the wrong
// port, a stream transport on the other end) is rejected on the first frame.
const (
	MagicNumber byte = 0x64 // 'd'
	MagicByte2  byte = 0x74 // 't'
	MagicByte3  byte = 0x79 // 'y'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodyLen bounds the allocation a single header can cause.
	MaxBodyLen uint32 = 64 << 20
)

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // client → server
	MsgTypeResponse  MsgType = 1 // server → client
	MsgTypeHeartbeat MsgType = 2 // keepalive probe, no body
)

func (m MsgType) String() string {
	switch m {
	case MsgTypeRequest:
		return "request"
	case MsgTypeResponse:
		return "response"
	case MsgTypeHeartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// Codec type constants, mirrored from the codec package to avoid a circular import.
const (
	CodecTypeJSON byte = 0
	CodecTypeCBOR byte = 1
)

// ErrInvalidFrame is wrapped by every Decode error caused by bad bytes rather
// than by the reader failing.
var ErrInvalidFrame = errors.New("invalid frame")

// Header represents the fixed 14-byte frame header.
type Header struct {
	CodecType byte    // 0=JSON, 1=CBOR
	MsgType   MsgType // Request, Response, or Heartbeat
	Seq       uint32  // matches a response to its request
	BodyLen   uint32  // set by Encode
}

// Encode writes a complete frame (header + body) to w.
// The caller must hold a write lock if several goroutines share w, otherwise
// frames interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint64(len(body)) > uint64(MaxBodyLen) {
		return pkgerr.Wrapf(ErrInvalidFrame, "body of %d bytes exceeds limit", len(body))
	}
	h.BodyLen = uint32(len(body))

	// Header and body go out in one Write so an unbuffered pipe sees one unit.
	buf := make([]byte, HeaderSize+len(body))
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r.
// It validates the magic number, version, codec type, message type and body
// length. A clean EOF before the first header byte is returned as io.EOF; a
// frame cut short anywhere else is io.ErrUnexpectedEOF.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, pkgerr.Wrapf(ErrInvalidFrame, "invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, pkgerr.Wrapf(ErrInvalidFrame, "unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeCBOR {
		return nil, nil, pkgerr.Wrapf(ErrInvalidFrame, "unsupported codec type: %d", headerBuf[4])
	}
	msgType := MsgType(headerBuf[5])
	if msgType != MsgTypeRequest && msgType != MsgTypeResponse && msgType != MsgTypeHeartbeat {
		return nil, nil, pkgerr.Wrapf(ErrInvalidFrame, "unsupported message type: %d", headerBuf[5])
	}

	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > MaxBodyLen {
		return nil, nil, pkgerr.Wrapf(ErrInvalidFrame, "body length %d exceeds limit", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
