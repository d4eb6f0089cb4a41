package loadbalance

import "sync/atomic"

// RoundRobinBalancer cycles through the instances in order.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(instances []Instance) (int, error) {
	if len(instances) == 0 {
		return 0, ErrNoInstances
	}
	return int((b.counter.Add(1) - 1) % uint64(len(instances))), nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
