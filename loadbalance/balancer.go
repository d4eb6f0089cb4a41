// Package loadbalance picks one member of a Dispatcher for a point-to-point
// call.
//
// Three strategies are implemented:
//   - RoundRobin:      stateless workers of equal capacity
//   - WeightedRandom:  workers of different capacity
//   - ConsistentHash:  workers keeping per-key state or caches
package loadbalance

import "errors"

// Instance describes one member. Members are identified by their position in
// the slice handed to Pick.
type Instance struct {
	Addr   string
	Weight int
}

// Balancer selects the index of one instance.
type Balancer interface {
	// Pick is called for every routed call and must be goroutine-safe.
	Pick(instances []Instance) (int, error)

	// Name returns the strategy name, for logs and configuration.
	Name() string
}

var ErrNoInstances = errors.New("loadbalance: no instances available")

// ByName returns a fresh balancer for a configured strategy name. An empty
// name selects round robin. ConsistentHash is keyed and has no entry here.
func ByName(name string) (Balancer, error) {
	switch name {
	case "", "RoundRobin", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "WeightedRandom", "weighted_random":
		return &WeightedRandomBalancer{}, nil
	}
	return nil, errors.New("loadbalance: unknown strategy " + name)
}
