package evo

import (
	"math/rand"
	"testing"

	"resectnet/internal/genome"
)

func rankedPair() []ScoredDescriptor {
	good := genome.Default(2, 1)
	good.LearningRate = 0.1
	bad := genome.Default(2, 1)
	bad.LearningRate = 0.9
	return []ScoredDescriptor{{Descriptor: good, Fitness: 0.2}, {Descriptor: bad, Fitness: 0.8}}
}

func TestUniformSelectorPicksEveryParent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ranked := rankedPair()
	seen := map[float64]int{}
	for i := 0; i < 200; i++ {
		parent, err := UniformSelector{}.PickParent(rng, ranked)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		seen[parent.LearningRate]++
	}
	if seen[0.1] == 0 || seen[0.9] == 0 {
		t.Fatalf("uniform selection should reach both parents: %v", seen)
	}
}

func TestTournamentSelectorPrefersLowerFitness(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ranked := rankedPair()
	good := 0
	for i := 0; i < 200; i++ {
		parent, err := TournamentSelector{Size: 2}.PickParent(rng, ranked)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if parent.LearningRate == 0.1 {
			good++
		}
	}
	if good <= 100 {
		t.Fatalf("tournament should favour the lower error parent, picked it %d/200 times", good)
	}
}

func TestSelectorsRejectBadInput(t *testing.T) {
	for _, s := range []Selector{UniformSelector{}, TournamentSelector{}} {
		if _, err := s.PickParent(nil, rankedPair()); err == nil {
			t.Fatalf("%s: expected missing rng error", s.Name())
		}
		if _, err := s.PickParent(rand.New(rand.NewSource(1)), nil); err == nil {
			t.Fatalf("%s: expected empty population error", s.Name())
		}
	}
}

func TestSelectorByName(t *testing.T) {
	for name, want := range map[string]string{"": "uniform", "uniform": "uniform", "tournament": "tournament"} {
		s, err := SelectorByName(name, 3)
		if err != nil {
			t.Fatalf("selector %q: %v", name, err)
		}
		if s.Name() != want {
			t.Fatalf("selector %q: got %s want %s", name, s.Name(), want)
		}
	}
	if _, err := SelectorByName("roulette", 0); err == nil {
		t.Fatal("expected unsupported selector error")
	}
}
