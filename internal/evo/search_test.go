package evo

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"resectnet/internal/dataset"
	"resectnet/internal/genome"
	"resectnet/internal/model"
	"resectnet/internal/train"
)

func separableStrata(t *testing.T, n int) []*dataset.Dataset {
	t.Helper()
	d := dataset.New(2, 1, n)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		y := 0.0
		if x >= 0.5 {
			y = 1
		}
		if err := d.Append([]float64{x, 1 - x}, []float64{y}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	strata, err := dataset.Stratify(d, 2, dataset.Threshold(0.5))
	if err != nil {
		t.Fatalf("stratify: %v", err)
	}
	return strata
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Generations = 2
	cfg.Offspring = 4
	cfg.Survivors = 2
	cfg.InnerFolds = 2
	cfg.InnerRepeats = 1
	cfg.Trainer = train.EarlyStopping{MaxEpochs: 15, Patience: 5}
	cfg.Workers = 2
	cfg.Seed = 7
	return cfg
}

func TestNewSearchValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "generations", mutate: func(c *Config) { c.Generations = 0 }},
		{name: "offspring", mutate: func(c *Config) { c.Offspring = 0 }},
		{name: "survivors-zero", mutate: func(c *Config) { c.Survivors = 0 }},
		{name: "survivors-too-many", mutate: func(c *Config) { c.Survivors = c.Offspring + 1 }},
		{name: "big-start", mutate: func(c *Config) { c.BigMutationStart = 1.5 }},
		{name: "small-chance", mutate: func(c *Config) { c.SmallMutationChance = -0.1 }},
		{name: "coefficient", mutate: func(c *Config) { c.BigMutationCoefficient = -1 }},
		{name: "inner-folds", mutate: func(c *Config) { c.InnerFolds = 1 }},
		{name: "inner-repeats", mutate: func(c *Config) { c.InnerRepeats = 0 }},
		{name: "trainer", mutate: func(c *Config) { c.Trainer.Patience = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := smallConfig()
			tc.mutate(&cfg)
			if _, err := NewSearch(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}

	cfg := smallConfig()
	cfg.Workers = 0
	cfg.Selector = nil
	s, err := NewSearch(cfg)
	if err != nil {
		t.Fatalf("new search: %v", err)
	}
	if s.cfg.Workers <= 0 || s.cfg.Selector == nil {
		t.Fatalf("defaults not applied: %+v", s.cfg)
	}
}

func TestBigMutationChanceAnneals(t *testing.T) {
	s, err := NewSearch(DefaultConfig())
	if err != nil {
		t.Fatalf("new search: %v", err)
	}
	if got := s.BigMutationChance(0); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("generation 0: got=%f want=0.5", got)
	}
	if got, want := s.BigMutationChance(1), 0.45*0.85+0.05; math.Abs(got-want) > 1e-12 {
		t.Fatalf("generation 1: got=%f want=%f", got, want)
	}
	prev := s.BigMutationChance(0)
	for gen := 1; gen < 100; gen++ {
		cur := s.BigMutationChance(gen)
		if cur > prev || cur < 0.05 {
			t.Fatalf("generation %d: chance %f not annealing toward 0.05", gen, cur)
		}
		prev = cur
	}
}

func TestEvaluateSumsFoldErrors(t *testing.T) {
	strata := separableStrata(t, 20)
	rng := rand.New(rand.NewSource(3))
	trainer := train.EarlyStopping{MaxEpochs: 10, Patience: 3}

	fitness, err := Evaluate(rng, genome.Default(2, 1), strata, 4, 2, trainer)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if fitness <= 0 || fitness > 8 {
		t.Fatalf("fitness %f outside (0, folds*repeats]", fitness)
	}
}

func TestRunReturnsFittestOfFinalGeneration(t *testing.T) {
	strata := separableStrata(t, 24)
	before := strata[0].Input(0)[0]

	var reported []model.GenerationDiagnostics
	cfg := smallConfig()
	cfg.Reporter = func(d model.GenerationDiagnostics) { reported = append(reported, d) }
	s, err := NewSearch(cfg)
	if err != nil {
		t.Fatalf("new search: %v", err)
	}
	result, err := s.Run(context.Background(), strata)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := result.Best.Validate(); err != nil {
		t.Fatalf("best descriptor invalid: %v", err)
	}
	if len(result.Survivors) != cfg.Survivors {
		t.Fatalf("expected %d survivors, got %d", cfg.Survivors, len(result.Survivors))
	}
	for i := 1; i < len(result.Survivors); i++ {
		if result.Survivors[i].Fitness < result.Survivors[i-1].Fitness {
			t.Fatalf("survivors not sorted: %+v", result.Survivors)
		}
	}
	if result.Fitness != result.Survivors[0].Fitness {
		t.Fatalf("result fitness %f differs from best survivor %f", result.Fitness, result.Survivors[0].Fitness)
	}
	if result.BestEverFitness > result.Fitness {
		t.Fatalf("best-ever %f worse than final %f", result.BestEverFitness, result.Fitness)
	}
	if len(result.Diagnostics) != cfg.Generations || len(reported) != cfg.Generations {
		t.Fatalf("expected %d diagnostics, got %d (reported %d)", cfg.Generations, len(result.Diagnostics), len(reported))
	}
	if reported[0].Generation != 1 || reported[0].Evaluated != cfg.Offspring {
		t.Fatalf("unexpected first diagnostics: %+v", reported[0])
	}
	if strata[0].Input(0)[0] != before {
		t.Fatal("search must not reorder caller strata")
	}
}

func TestRunIsReproducibleForSeed(t *testing.T) {
	run := func() Result {
		s, err := NewSearch(smallConfig())
		if err != nil {
			t.Fatalf("new search: %v", err)
		}
		result, err := s.Run(context.Background(), separableStrata(t, 16))
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return result
	}
	a, b := run(), run()
	if a.Fitness != b.Fitness || a.BestEverFitness != b.BestEverFitness {
		t.Fatalf("runs differ: %f/%f vs %f/%f", a.Fitness, a.BestEverFitness, b.Fitness, b.BestEverFitness)
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	s, err := NewSearch(smallConfig())
	if err != nil {
		t.Fatalf("new search: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx, separableStrata(t, 10)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunRejectsEmptyData(t *testing.T) {
	s, err := NewSearch(smallConfig())
	if err != nil {
		t.Fatalf("new search: %v", err)
	}
	if _, err := s.Run(context.Background(), nil); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if _, err := s.Run(context.Background(), []*dataset.Dataset{dataset.New(2, 1, 0)}); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestSummarizeGeneration(t *testing.T) {
	a := genome.Default(2, 1)
	b := genome.Default(2, 1)
	b.Layers = []int{2, 3, 3, 1}
	b.HiddenActivations = append(b.HiddenActivations, b.HiddenActivations[0])
	b.HiddenSteepness = append(b.HiddenSteepness, b.HiddenSteepness[0])

	diag := summarizeGeneration([]ScoredDescriptor{
		{Descriptor: a, Fitness: 1},
		{Descriptor: b, Fitness: 3},
		{Descriptor: a, Fitness: 2},
	}, 4, 0.3, 0.5)

	if diag.Generation != 4 || diag.Evaluated != 3 || diag.BigMutationChance != 0.3 {
		t.Fatalf("unexpected header: %+v", diag)
	}
	if diag.BestFitness != 1 || diag.WorstFitness != 3 || diag.MeanFitness != 2 {
		t.Fatalf("unexpected fitness summary: %+v", diag)
	}
	if math.Abs(diag.StdFitness-1) > 1e-12 {
		t.Fatalf("unexpected std: %f", diag.StdFitness)
	}
	if diag.DistinctTopologies != 2 {
		t.Fatalf("expected 2 distinct topologies, got %d", diag.DistinctTopologies)
	}
	if math.Abs(diag.MeanHiddenLayers-4.0/3.0) > 1e-12 {
		t.Fatalf("unexpected mean hidden layers: %f", diag.MeanHiddenLayers)
	}
	if diag.BestEverFitness != 0.5 || diag.OuterFold != -1 {
		t.Fatalf("unexpected bookkeeping: %+v", diag)
	}
}
