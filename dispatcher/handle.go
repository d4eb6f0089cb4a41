package dispatcher

import (
	"context"
	"sync/atomic"

	"github.com/samber/lo"

	"duty/client"
	"duty/rpcerr"
)

// DispatchHandle holds one CallHandle per member, in member order.
type DispatchHandle[R any] struct {
	handles  []*client.CallHandle[R]
	reduce   func(a, b R) R
	consumed atomic.Bool
}

// Len returns the number of member calls.
func (h *DispatchHandle[R]) Len() int {
	return len(h.handles)
}

// IsFinished reports whether every member call is finished.
func (h *DispatchHandle[R]) IsFinished() bool {
	return lo.EveryBy(h.handles, func(c *client.CallHandle[R]) bool { return c.IsFinished() })
}

// Cancel cancels every member call.
func (h *DispatchHandle[R]) Cancel() {
	for _, c := range h.handles {
		c.Cancel()
	}
}

// Get waits for every member and folds the responses left to right in member
// order. The first member error to arrive is returned at once and the other
// members are canceled. Get panics on a dispatcher with no members, and
// re-panics if a member's worker panicked.
func (h *DispatchHandle[R]) Get() (R, error) {
	return h.GetContext(context.Background())
}

type memberResult[R any] struct {
	index    int
	value    R
	err      error
	panicked bool
	panicVal any
}

// GetContext is Get bounded by ctx.
func (h *DispatchHandle[R]) GetContext(ctx context.Context) (R, error) {
	var zero R
	if len(h.handles) == 0 {
		panic("dispatcher: Get on a dispatch with no members")
	}
	if !h.consumed.CompareAndSwap(false, true) {
		return zero, rpcerr.ErrHandleConsumed
	}

	results := make(chan memberResult[R], len(h.handles))
	for i, c := range h.handles {
		go func() {
			r := memberResult[R]{index: i}
			defer func() {
				if p := recover(); p != nil {
					r.panicked, r.panicVal = true, p
				}
				results <- r
			}()
			r.value, r.err = c.GetContext(ctx)
		}()
	}

	values := make([]R, len(h.handles))
	for range h.handles {
		r := <-results
		if r.panicked {
			h.Cancel()
			panic(r.panicVal)
		}
		if r.err != nil {
			h.Cancel()
			return zero, errMember(r.index, r.err)
		}
		values[r.index] = r.value
	}

	return lo.Reduce(values[1:], func(acc R, v R, _ int) R {
		return h.reduce(acc, v)
	}, values[0]), nil
}
