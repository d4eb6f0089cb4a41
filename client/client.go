// Package client issues non-blocking calls over a single Transport.
//
// Every Call runs in its own goroutine and returns a CallHandle at once.
// Calls on one Client take turns on the transport: a call holds it from the
// start of its send until its response has been received, so requests and
// responses never interleave.
//
//	goroutine-1 ──Call──┐
//	goroutine-2 ──Call──┼──→ lock → send → receive → unlock ──→ handle-n
//	goroutine-3 ──Call──┘
package client

import (
	"context"
	"fmt"
	"sync/atomic"

	"duty/logging"
	"duty/message"
	"duty/procedure"
	"duty/rpcerr"
	"duty/transport"
)

var log = logging.NewDomain("client")

// Client owns one Transport.
type Client struct {
	t transport.Transport
	// turn holds a token while a call is using the transport. It is a
	// channel rather than a mutex so a canceled call can stop waiting.
	turn   chan struct{}
	closed atomic.Bool
}

func New(t transport.Transport) *Client {
	return &Client{t: t, turn: make(chan struct{}, 1)}
}

// Close closes the transport without waiting for in-flight calls; they fail
// with a receive error. Calls that have not sent yet fail with
// rpcerr.ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.t.Close()
}

// Call sends p.Request() and returns a handle to the typed response.
func Call[R any](c *Client, p procedure.Procedure[R]) *CallHandle[R] {
	return start[R](c, fmt.Sprintf("%T", p), p.Request())
}

// Invoke sends req and waits for the response, giving up when ctx is done.
// A ctx that is already done sends nothing. Generated service clients are
// built on it; op names the operation in errors.
func Invoke[R any](ctx context.Context, c *Client, op string, req any) (R, error) {
	if err := ctx.Err(); err != nil {
		var zero R
		return zero, rpcerr.New(rpcerr.KindCanceled, op, err)
	}
	return start[R](c, op, req).GetContext(ctx)
}

func start[R any](c *Client, op string, req any) *CallHandle[R] {
	h := newHandle[R]()
	go h.run(func() (R, error) {
		var zero R

		select {
		case c.turn <- struct{}{}:
		case <-h.cancel:
			return zero, rpcerr.ErrCanceled
		}
		defer func() { <-c.turn }()

		if h.canceled() {
			return zero, rpcerr.ErrCanceled
		}
		if c.closed.Load() {
			return zero, rpcerr.New(rpcerr.KindSend, op, rpcerr.ErrClosed)
		}

		var reply message.Reply[R]
		if err := transport.SendReceive(c.t, req, &reply); err != nil {
			log.Debug().Err(err).Str("op", op).Msg("call failed")
			return zero, err
		}
		if reply.Failed() {
			return zero, rpcerr.Remote(op, reply.Error)
		}
		return reply.Value, nil
	})
	return h
}
