package middleware

import (
	"context"
	"time"

	"duty/logging"
)

// Logging logs every request with its duration, at debug level when it
// succeeds and at warn level when the handler returns an error.
func Logging(l *logging.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			ev := l.Debug()
			if err != nil {
				ev = l.Warn().Err(err)
			}
			ev.Str("op", req.Op).Dur("duration", time.Since(start)).Msg("handled request")
			return resp, err
		}
	}
}
