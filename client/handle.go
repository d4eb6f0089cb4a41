package client

import (
	"context"
	"sync"
	"sync/atomic"

	"duty/rpcerr"
)

// CallHandle is one in-flight call. Its result can be retrieved once.
type CallHandle[R any] struct {
	done       chan struct{}
	cancel     chan struct{}
	cancelOnce sync.Once
	consumed   atomic.Bool

	// written by the worker before done is closed
	value    R
	err      error
	panicked bool
	panicVal any
}

func newHandle[R any]() *CallHandle[R] {
	return &CallHandle[R]{
		done:   make(chan struct{}),
		cancel: make(chan struct{}),
	}
}

func (h *CallHandle[R]) run(fn func() (R, error)) {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			h.panicked = true
			h.panicVal = r
		}
	}()
	h.value, h.err = fn()
}

// IsFinished reports whether Get would return without blocking.
func (h *CallHandle[R]) IsFinished() bool {
	select {
	case <-h.done:
		return true
	case <-h.cancel:
		return true
	default:
		return false
	}
}

// Done is closed when the worker goroutine has finished, including after a
// cancel.
func (h *CallHandle[R]) Done() <-chan struct{} {
	return h.done
}

// Get blocks until the response arrives. It consumes the handle: a second
// Get returns rpcerr.ErrHandleConsumed. If the worker panicked, Get panics
// with the same value.
func (h *CallHandle[R]) Get() (R, error) {
	return h.GetContext(context.Background())
}

// GetContext is Get bounded by ctx. When ctx is done first the call is
// canceled and the error has kind KindCanceled.
func (h *CallHandle[R]) GetContext(ctx context.Context) (R, error) {
	var zero R
	if !h.consumed.CompareAndSwap(false, true) {
		return zero, rpcerr.ErrHandleConsumed
	}

	select {
	case <-h.done:
	case <-h.cancel:
	case <-ctx.Done():
		h.Cancel()
		return zero, rpcerr.New(rpcerr.KindCanceled, "call", ctx.Err())
	}
	if h.canceled() {
		return zero, rpcerr.ErrCanceled
	}
	if h.panicked {
		panic(h.panicVal)
	}
	return h.value, h.err
}

// Cancel stops waiting for the call and discards its result. A call that has
// not started sending yet never sends; one already on the wire finishes in
// the background so the transport stays in step, and whatever it did
// remotely stands.
func (h *CallHandle[R]) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancel) })
}

func (h *CallHandle[R]) canceled() bool {
	select {
	case <-h.cancel:
		return true
	default:
		return false
	}
}
