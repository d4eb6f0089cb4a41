package loadbalance

import "math/rand/v2"

// WeightedRandomBalancer picks an instance with probability proportional to
// its weight. Weights below 1 count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []Instance) (int, error) {
	if len(instances) == 0 {
		return 0, ErrNoInstances
	}

	total := 0
	for _, v := range instances {
		total += weight(v)
	}

	r := rand.IntN(total)
	for i, v := range instances {
		r -= weight(v)
		if r < 0 {
			return i, nil
		}
	}
	return len(instances) - 1, nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weight(i Instance) int {
	return max(i.Weight, 1)
}
