package middleware

import (
	"context"
	"errors"
	"syscall"
	"time"

	"duty/logging"
)

var retryLog = logging.NewDomain("retry")

// Retryable marks err as worth retrying.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err}
}

type retryableError struct{ error }

func (e retryableError) Unwrap() error { return e.error }

func isRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// Retry runs the handler again when it fails with a retryable error: a
// timeout, a refused connection to something the handler depends on, or an
// error wrapped with Retryable. The delay doubles after every attempt,
// starting at baseDelay. Handlers behind Retry must be safe to run twice.
func Retry(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (any, error) {
			resp, err := next(ctx, req)
			for i := 0; i < maxRetries && err != nil && isRetryable(err); i++ {
				retryLog.Debug().Err(err).Str("op", req.Op).Int("attempt", i+1).Msg("retrying")
				select {
				case <-time.After(baseDelay << i):
				case <-ctx.Done():
					return resp, err
				}
				resp, err = next(ctx, req)
			}
			return resp, err
		}
	}
}
