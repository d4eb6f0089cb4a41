// Package message defines the response envelope exchanged between client and server.
//
// Requests travel as the bare request value (a procedure, or a generated request
// union). Every response travels wrapped in a Reply, so a handler error can reach
// the caller without being confused with a value.
package message

// Reply carries the outcome of a single request.
//
//   - On success: Error is empty and Value holds the response.
//   - On failure: Error is non-empty and Value is the zero value.
type Reply[T any] struct {
	Error string `json:"error,omitempty"`
	Value T      `json:"value"`
}

// OK wraps a successful response.
func OK[T any](v T) Reply[T] {
	return Reply[T]{Value: v}
}

// Fail wraps a handler error. A nil err is reported as "unknown error" so the
// envelope never looks successful by accident.
func Fail[T any](err error) Reply[T] {
	if err == nil {
		return Reply[T]{Error: "unknown error"}
	}
	return Reply[T]{Error: err.Error()}
}

// Failed reports whether the reply carries an error.
func (r Reply[T]) Failed() bool {
	return r.Error != ""
}
