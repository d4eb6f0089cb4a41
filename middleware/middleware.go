// Package middleware wraps the handler a server runs for each request.
//
// Middlewares compose like an onion: Chain(A, B, C)(h) is A(B(C(h))), so A
// sees the request first and the result last.
package middleware

import (
	"context"
	"errors"
)

// Request is what a middleware sees of an incoming call.
type Request struct {
	Op   string // operation name, e.g. "And"
	Args any    // the decoded arguments of that operation
}

// HandlerFunc produces the response for one request.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

type Middleware func(next HandlerFunc) HandlerFunc

var (
	ErrTimeout     = errors.New("request timed out")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Chain composes middlewares into one. Chain() is the identity.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
