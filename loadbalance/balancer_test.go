package loadbalance

import (
	"errors"
	"fmt"
	"testing"
)

var testInstances = []Instance{
	{Addr: ":8001", Weight: 10},
	{Addr: ":8002", Weight: 5},
	{Addr: ":8003", Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	for round := 0; round < 2; round++ {
		for want := range testInstances {
			got, err := b.Pick(testInstances)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Fatalf("round %d: expect %d, got %d", round, want, got)
			}
		}
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); !errors.Is(err, ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[int]int{}
	n := 10000
	for i := 0; i < n; i++ {
		idx, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[idx]++
	}

	// Weight ratio is 10:5:10, so the first instance should get ~2x the second.
	ratio := float64(counts[0]) / float64(counts[1])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio 0/1 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	idx, err := b.Pick([]Instance{{Addr: "a"}, {Addr: "b"}})
	if err != nil || idx < 0 || idx > 1 {
		t.Fatalf("zero weights must still pick, got %d, %v", idx, err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.Pick("k"); !errors.Is(err, ErrNoInstances) {
		t.Fatalf("empty ring: expect ErrNoInstances, got %v", err)
	}
	for i, inst := range testInstances {
		b.Add(i, inst)
	}

	first, _ := b.Pick("user-123")
	second, _ := b.Pick("user-123")
	if first != second {
		t.Fatalf("same key mapped to different instances: %d vs %d", first, second)
	}

	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		idx, _ := b.Pick(fmt.Sprintf("key-%d", i))
		seen[idx] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{"": "RoundRobin", "weighted_random": "WeightedRandom"} {
		b, err := ByName(name)
		if err != nil || b.Name() != want {
			t.Fatalf("ByName(%q) = %v, %v", name, b, err)
		}
	}
	if _, err := ByName("fastest"); err == nil {
		t.Fatal("expect error for unknown strategy")
	}
}
