// Package transport moves whole values over a duplex byte stream.
//
// A Transport is the only thing clients and servers know about the wire: one
// Send on one side is exactly one Receive on the other. Two framings are
// provided:
//
//	ClientTransport / ServerTransport   length-prefixed frames (package protocol)
//	Stream                              self-delimiting codec written straight to the stream
//
// The stream itself (TCP, SSH channel, process pipes, websocket, yamux stream,
// in-process pipe) is any io.ReadWriteCloser; the adapters in this package only
// establish one.
package transport

import (
	"errors"
	"net"

	"duty/protocol"
	"duty/rpcerr"
)

// Transport sends and receives whole values. Implementations are not safe for
// concurrent use; the owning Client or Server serializes access.
type Transport interface {
	// Send encodes v and writes it as one unit.
	Send(v any) error
	// Receive blocks until one unit arrives and decodes it into v.
	Receive(v any) error
	// Close releases the underlying stream.
	Close() error
}

// SendReceive sends in and waits for the next unit, decoding it into out.
func SendReceive(t Transport, in, out any) error {
	if err := t.Send(in); err != nil {
		return err
	}
	return t.Receive(out)
}

// receiveError classifies a read-side failure: broken or closed streams are
// KindReceive, bytes we could not make sense of are KindMalformed.
func receiveError(err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, protocol.ErrInvalidFrame):
		return rpcerr.New(rpcerr.KindMalformed, "receive", err)
	case rpcerr.IsDisconnect(err), errors.As(err, &ne):
		return rpcerr.New(rpcerr.KindReceive, "receive", err)
	}
	return rpcerr.New(rpcerr.KindMalformed, "receive", err)
}
