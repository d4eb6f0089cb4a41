package server

import (
	"context"

	"duty/logging"
	"duty/message"
	"duty/middleware"
	"duty/rpcerr"
	"duty/transport"
)

var log = logging.NewDomain("server")

// Handler serves one request from t per call. It returns an error only when
// the connection cannot go on: the request could not be received or the
// response could not be sent. Handler errors travel to the caller instead.
//
// One Handler serves every connection of a Listener concurrently.
type Handler interface {
	HandleNextRequest(ctx context.Context, t transport.Transport) error
}

type HandlerFunc func(ctx context.Context, t transport.Transport) error

func (f HandlerFunc) HandleNextRequest(ctx context.Context, t transport.Transport) error {
	return f(ctx, t)
}

// Reply runs fn behind chain and sends its result, or its error, on t. A nil
// chain runs fn directly. The returned error is the send error, if any.
func Reply(ctx context.Context, t transport.Transport, chain middleware.Middleware, op string, args any, fn func(ctx context.Context) (any, error)) error {
	handler := func(ctx context.Context, _ *middleware.Request) (any, error) {
		return fn(ctx)
	}
	if chain != nil {
		handler = chain(handler)
	}

	resp, err := handler(ctx, &middleware.Request{Op: op, Args: args})
	if err != nil {
		return t.Send(message.Fail[any](err))
	}
	return t.Send(message.OK(resp))
}

// Reject answers a request that decoded but names no operation this server
// knows. The connection stays usable.
func Reject(t transport.Transport, err error) error {
	log.Warn().Err(err).Msg("rejected request")
	return t.Send(message.Fail[any](err))
}

// ServeTransport calls h until the connection ends. A peer hanging up is the
// normal end and returns nil; anything else is returned. ctx is checked
// between requests.
func ServeTransport(ctx context.Context, t transport.Transport, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return rpcerr.New(rpcerr.KindCanceled, "serve", err)
		}
		if err := h.HandleNextRequest(ctx, t); err != nil {
			if rpcerr.IsDisconnect(err) {
				return nil
			}
			return err
		}
	}
}
