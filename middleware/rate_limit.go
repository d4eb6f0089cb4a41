package middleware

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimit rejects requests beyond r per second, with bursts of up to burst,
// using a token bucket shared by every connection the middleware serves.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (any, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
