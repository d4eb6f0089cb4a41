package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sync"
)

// ConsistentHashBalancer maps keys to instances on a hash ring, so the same
// key keeps going to the same member while the ring is unchanged.
//
// Each instance is placed on the ring as replicas virtual nodes, which keeps
// the share of keys per instance even.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	mu       sync.RWMutex
	replicas int
	ring     []uint32       // sorted
	nodes    map[uint32]int // hash → instance index
}

// NewConsistentHashBalancer creates a ring with 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]int),
	}
}

// Add places instance index on the ring. Virtual node i is hashed from
// "{addr}#{i}", so instances must have distinct addresses.
func (b *ConsistentHashBalancer) Add(index int, instance Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		if _, dup := b.nodes[hash]; !dup {
			b.ring = append(b.ring, hash)
		}
		b.nodes[hash] = index
	}
	slices.Sort(b.ring)
}

// Pick returns the index of the instance responsible for key: the first
// node clockwise from the key's hash, wrapping around past the largest.
func (b *ConsistentHashBalancer) Pick(key string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ring) == 0 {
		return 0, ErrNoInstances
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx, _ := slices.BinarySearch(b.ring, hash)
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
