package evo

import (
	"fmt"
	"math/rand"

	"resectnet/internal/genome"
)

// Selector chooses a breeding parent from the current survivors, ranked by
// ascending fitness.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredDescriptor) (genome.Descriptor, error)
}

// UniformSelector picks any survivor with equal probability. The same parent
// may be picked twice for one child.
type UniformSelector struct{}

func (UniformSelector) Name() string {
	return "uniform"
}

func (UniformSelector) PickParent(rng *rand.Rand, ranked []ScoredDescriptor) (genome.Descriptor, error) {
	if rng == nil {
		return genome.Descriptor{}, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return genome.Descriptor{}, fmt.Errorf("no parents to select from")
	}
	return ranked[rng.Intn(len(ranked))].Descriptor, nil
}

// TournamentSelector samples Size survivors and keeps the one with the lowest
// fitness.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredDescriptor) (genome.Descriptor, error) {
	if rng == nil {
		return genome.Descriptor{}, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return genome.Descriptor{}, fmt.Errorf("no parents to select from")
	}
	size := s.Size
	if size <= 0 {
		size = 2
	}
	if size > len(ranked) {
		size = len(ranked)
	}

	best := ranked[rng.Intn(len(ranked))]
	for i := 1; i < size; i++ {
		candidate := ranked[rng.Intn(len(ranked))]
		if candidate.Fitness < best.Fitness {
			best = candidate
		}
	}
	return best.Descriptor, nil
}

// SelectorByName resolves a configured selector name.
func SelectorByName(name string, tournamentSize int) (Selector, error) {
	switch name {
	case "", "uniform":
		return UniformSelector{}, nil
	case "tournament":
		return TournamentSelector{Size: tournamentSize}, nil
	default:
		return nil, fmt.Errorf("unsupported selector: %s", name)
	}
}
