package transport

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"duty/codec"
	"duty/logging"
	"duty/protocol"
	"duty/rpcerr"
)

var log = logging.NewDomain("transport")

type options struct {
	heartbeat time.Duration
	codec     codec.CodecType
}

// Option configures a framed transport.
type Option func(*options)

// WithHeartbeat makes a ClientTransport send an empty heartbeat frame every
// interval. The server side skips them. Zero disables heartbeats.
func WithHeartbeat(interval time.Duration) Option {
	return func(o *options) { o.heartbeat = interval }
}

// WithCodec sets the codec a ServerTransport uses before it has seen a request.
// Once a request arrives, replies use the codec of the request.
func WithCodec(ct codec.CodecType) Option {
	return func(o *options) { o.codec = ct }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ClientTransport is the requesting end of a framed connection.
//
// Every request frame is stamped with the next sequence number and the
// response must echo it. With the connection strictly request/response this
// catches a peer that answers out of turn, which would otherwise hand one
// caller another caller's reply.
type ClientTransport struct {
	conn    io.ReadWriteCloser
	codec   codec.StreamCodec
	seq     atomic.Uint32 // last sequence number sent
	sending sync.Mutex    // heartbeats and requests share the writer
	done    chan struct{}
	once    sync.Once
}

// NewClientTransport wraps conn. If a heartbeat is configured a background
// goroutine sends it until Close.
func NewClientTransport(conn io.ReadWriteCloser, ct codec.CodecType, opts ...Option) *ClientTransport {
	o := buildOptions(opts)
	t := &ClientTransport{
		conn:  conn,
		codec: codec.GetCodec(ct),
		done:  make(chan struct{}),
	}
	if o.heartbeat > 0 {
		go t.heartbeatLoop(o.heartbeat)
	}
	return t
}

func (t *ClientTransport) Send(v any) error {
	body, err := t.codec.Encode(v)
	if err != nil {
		return rpcerr.New(rpcerr.KindEncode, "send", err)
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       t.seq.Add(1),
	}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		if errors.Is(err, protocol.ErrInvalidFrame) {
			return rpcerr.New(rpcerr.KindEncode, "send", err)
		}
		return rpcerr.New(rpcerr.KindSend, "send", err)
	}
	return nil
}

func (t *ClientTransport) Receive(v any) error {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			return receiveError(err)
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		if header.MsgType != protocol.MsgTypeResponse {
			return rpcerr.Errorf(rpcerr.KindMalformed, "receive", "expected a response frame, got %v", header.MsgType)
		}
		if want := t.seq.Load(); header.Seq != want {
			return rpcerr.Errorf(rpcerr.KindMalformed, "receive", "response seq %d does not match request seq %d", header.Seq, want)
		}
		if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, v); err != nil {
			return rpcerr.New(rpcerr.KindMalformed, "receive", err)
		}
		return nil
	}
}

func (t *ClientTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.conn.Close()
}

// heartbeatLoop sends periodic heartbeat frames so idle connections are not
// dropped by the peer or by middleboxes.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{
			CodecType: byte(t.codec.Type()),
			MsgType:   protocol.MsgTypeHeartbeat,
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			log.Debug().Err(err).Msg("heartbeat stopped")
			return
		}
	}
}

// ServerTransport is the answering end of a framed connection. It learns the
// codec and sequence number from each request and echoes them on the reply.
type ServerTransport struct {
	conn  io.ReadWriteCloser
	codec codec.CodecType
	seq   uint32
}

func NewServerTransport(conn io.ReadWriteCloser, opts ...Option) *ServerTransport {
	o := buildOptions(opts)
	return &ServerTransport{conn: conn, codec: o.codec}
}

func (t *ServerTransport) Receive(v any) error {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			return receiveError(err)
		}
		if header.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		if header.MsgType != protocol.MsgTypeRequest {
			return rpcerr.Errorf(rpcerr.KindMalformed, "receive", "expected a request frame, got %v", header.MsgType)
		}
		// Recorded before decoding so a failure reply still reaches the caller.
		t.codec = codec.CodecType(header.CodecType)
		t.seq = header.Seq
		if err := codec.GetCodec(t.codec).Decode(body, v); err != nil {
			return rpcerr.New(rpcerr.KindMalformed, "receive", err)
		}
		return nil
	}
}

func (t *ServerTransport) Send(v any) error {
	body, err := codec.GetCodec(t.codec).Encode(v)
	if err != nil {
		return rpcerr.New(rpcerr.KindEncode, "send", err)
	}
	header := protocol.Header{
		CodecType: byte(t.codec),
		MsgType:   protocol.MsgTypeResponse,
		Seq:       t.seq,
	}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		if errors.Is(err, protocol.ErrInvalidFrame) {
			return rpcerr.New(rpcerr.KindEncode, "send", err)
		}
		return rpcerr.New(rpcerr.KindSend, "send", err)
	}
	return nil
}

func (t *ServerTransport) Close() error {
	return t.conn.Close()
}
