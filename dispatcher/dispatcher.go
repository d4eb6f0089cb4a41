// Package dispatcher fans one procedure out to many backends and folds their
// responses into one.
//
//	            ┌─ member 0 ── CallHandle ─┐
//	Dispatch ───┼─ member 1 ── CallHandle ─┼── Reduce(Reduce(r0, r1), r2)
//	            └─ member 2 ── CallHandle ─┘
//
// Members never talk to each other; the only synchronization point is
// DispatchHandle.Get.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"duty/client"
	"duty/loadbalance"
	"duty/logging"
	"duty/procedure"
	"duty/transport"
)

var log = logging.NewDomain("dispatcher")

// Dispatcher owns an ordered list of clients. Member order is the order
// responses are folded in.
type Dispatcher struct {
	clients   []*client.Client
	instances []loadbalance.Instance
	balancer  loadbalance.Balancer

	ringOnce sync.Once
	ring     *loadbalance.ConsistentHashBalancer
}

// New creates one client per transport, in order.
func New(ts ...transport.Transport) *Dispatcher {
	return FromClients(lo.Map(ts, func(t transport.Transport, _ int) *client.Client {
		return client.New(t)
	})...)
}

// FromClients uses existing clients. The dispatcher takes ownership of them.
func FromClients(cs ...*client.Client) *Dispatcher {
	return &Dispatcher{
		clients: cs,
		instances: lo.Map(cs, func(_ *client.Client, i int) loadbalance.Instance {
			return loadbalance.Instance{Addr: fmt.Sprintf("member-%d", i), Weight: 1}
		}),
		balancer: &loadbalance.RoundRobinBalancer{},
	}
}

// DialFunc opens the transport for one backend.
type DialFunc func(ctx context.Context, addr string) (transport.Transport, error)

// DialAll dials every backend concurrently. Members keep the order of
// backends whatever order the dials finish in. If any dial fails the ones
// that succeeded are closed and the first error is returned.
func DialAll(ctx context.Context, backends []loadbalance.Instance, dial DialFunc) (*Dispatcher, error) {
	ts := make([]transport.Transport, len(backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			t, err := dial(gctx, b.Addr)
			if err != nil {
				return err
			}
			ts[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range ts {
			if t != nil {
				t.Close()
			}
		}
		return nil, err
	}

	d := New(ts...)
	d.instances = append([]loadbalance.Instance(nil), backends...)
	log.Debug().Int("members", len(ts)).Msg("dialed backends")
	return d, nil
}

// UseBalancer replaces the round robin balancer used by Route.
func (d *Dispatcher) UseBalancer(b loadbalance.Balancer) {
	d.balancer = b
}

// Len returns the number of members.
func (d *Dispatcher) Len() int {
	return len(d.clients)
}

// Instances returns the description of every member, in member order.
func (d *Dispatcher) Instances() []loadbalance.Instance {
	return append([]loadbalance.Instance(nil), d.instances...)
}

// Close closes every member.
func (d *Dispatcher) Close() error {
	return errors.Join(lo.Map(d.clients, func(c *client.Client, _ int) error {
		return c.Close()
	})...)
}

// Dispatch sends the same procedure value to every member and returns at once.
func Dispatch[R any](d *Dispatcher, p procedure.Procedure[R]) *DispatchHandle[R] {
	return &DispatchHandle[R]{
		handles: lo.Map(d.clients, func(c *client.Client, _ int) *client.CallHandle[R] {
			return client.Call(c, p)
		}),
		reduce: p.Reduce,
	}
}

// Route sends p to one member chosen by the balancer. Reduce is never called.
func Route[R any](d *Dispatcher, p procedure.Procedure[R]) (*client.CallHandle[R], error) {
	i, err := d.balancer.Pick(d.instances)
	if err != nil {
		return nil, err
	}
	return client.Call(d.clients[i], p), nil
}

// RouteKey sends p to the member owning key on a consistent hash ring over
// the member addresses.
func RouteKey[R any](d *Dispatcher, key string, p procedure.Procedure[R]) (*client.CallHandle[R], error) {
	d.ringOnce.Do(func() {
		d.ring = loadbalance.NewConsistentHashBalancer()
		for i, inst := range d.instances {
			d.ring.Add(i, inst)
		}
	})
	i, err := d.ring.Pick(key)
	if err != nil {
		return nil, err
	}
	return client.Call(d.clients[i], p), nil
}

// memberError tags an error with the member it came from. Unwrap keeps its
// rpcerr kind visible.
type memberError struct {
	index int
	err   error
}

func errMember(i int, err error) error { return &memberError{index: i, err: err} }

func (e *memberError) Error() string { return fmt.Sprintf("member %d: %v", e.index, e.err) }
func (e *memberError) Unwrap() error { return e.err }
