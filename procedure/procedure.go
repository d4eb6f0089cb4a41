// Package procedure couples a request with the rule used to combine the
// responses of several backends.
//
// A procedure value is immutable once built: a Dispatcher hands the very same
// value to every member. Reduce must be associative; the Dispatcher folds
// responses left to right in member order, so it need not be commutative.
package procedure

// Procedure is a request whose response has type R.
type Procedure[R any] interface {
	// Request returns the value put on the wire. A procedure that is its own
	// request returns itself; one served through a generated service returns
	// the service's request union.
	Request() any
	// Reduce combines two responses into one.
	Reduce(a, b R) R
}

// Requester is implemented by generated argument types.
type Requester interface {
	Request() any
}

// PointToPoint can be embedded by procedures that are only ever sent to a
// single backend. Its Reduce panics.
type PointToPoint[R any] struct{}

func (PointToPoint[R]) Reduce(a, b R) R {
	panic("procedure: Reduce called on a point-to-point procedure")
}

type bound[R any] struct {
	req    any
	reduce func(a, b R) R
}

func (b bound[R]) Request() any    { return b.req }
func (b bound[R]) Reduce(a, c R) R { return b.reduce(a, c) }

// With binds req to reduce. If req is a Requester (a generated argument type)
// its Request method gives the wire value; otherwise req is sent as is.
// A nil reduce makes the procedure point-to-point.
func With[R any](req any, reduce func(a, b R) R) Procedure[R] {
	if r, ok := req.(Requester); ok {
		req = r.Request()
	}
	if reduce == nil {
		reduce = PointToPoint[R]{}.Reduce
	}
	return bound[R]{req: req, reduce: reduce}
}
