package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"resectnet/internal/crossval"
	"resectnet/internal/dataset"
	"resectnet/internal/genome"
	"resectnet/internal/model"
	"resectnet/internal/train"
)

var ErrNoData = errors.New("search needs at least one non-empty stratum")

// ScoredDescriptor pairs a descriptor with its summed cross-validation error.
// Lower is better.
type ScoredDescriptor struct {
	Descriptor genome.Descriptor `json:"descriptor"`
	Fitness    float64           `json:"fitness"`
}

// Reporter observes every finished generation.
type Reporter func(model.GenerationDiagnostics)

type Config struct {
	Generations int
	Offspring   int
	Survivors   int

	BigMutationStart       float64
	BigMutationEnd         float64
	BigMutationCoefficient float64
	SmallMutationChance    float64
	SmallMutationFactor    float64

	InnerFolds   int
	InnerRepeats int
	Trainer      train.EarlyStopping

	Workers  int
	Seed     int64
	Selector Selector
	Reporter Reporter
}

func DefaultConfig() Config {
	return Config{
		Generations:            20,
		Offspring:              32,
		Survivors:              8,
		BigMutationStart:       0.5,
		BigMutationEnd:         0.05,
		BigMutationCoefficient: 0.85,
		SmallMutationChance:    0.25,
		SmallMutationFactor:    0.1,
		InnerFolds:             5,
		InnerRepeats:           1,
		Trainer:                train.EarlyStopping{MaxEpochs: 1000, Patience: 50},
		Workers:                runtime.NumCPU(),
		Seed:                   1,
	}
}

type Result struct {
	Best            genome.Descriptor
	Fitness         float64
	BestEverFitness float64
	Diagnostics     []model.GenerationDiagnostics
	Survivors       []ScoredDescriptor
}

type Search struct {
	cfg Config
	rng *rand.Rand
}

func NewSearch(cfg Config) (*Search, error) {
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.Offspring <= 0 {
		return nil, fmt.Errorf("offspring must be > 0")
	}
	if cfg.Survivors <= 0 || cfg.Survivors > cfg.Offspring {
		return nil, fmt.Errorf("survivors must be in [1, offspring]")
	}
	for name, p := range map[string]float64{
		"big mutation start":    cfg.BigMutationStart,
		"big mutation end":      cfg.BigMutationEnd,
		"small mutation chance": cfg.SmallMutationChance,
	} {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("%s must be in [0, 1]", name)
		}
	}
	if cfg.BigMutationCoefficient < 0 {
		return nil, fmt.Errorf("big mutation coefficient must be >= 0")
	}
	if cfg.SmallMutationFactor < 0 {
		return nil, fmt.Errorf("small mutation factor must be >= 0")
	}
	if cfg.InnerFolds < 2 {
		return nil, fmt.Errorf("inner folds must be >= 2")
	}
	if cfg.InnerRepeats < 1 {
		return nil, fmt.Errorf("inner repeats must be >= 1")
	}
	if err := cfg.Trainer.Validate(); err != nil {
		return nil, fmt.Errorf("trainer: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Selector == nil {
		cfg.Selector = UniformSelector{}
	}

	return &Search{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// BigMutationChance returns the annealed big-mutation probability for a
// zero-based generation.
func (s *Search) BigMutationChance(generation int) float64 {
	c := s.cfg
	return (c.BigMutationStart-c.BigMutationEnd)*math.Pow(c.BigMutationCoefficient, float64(generation)) + c.BigMutationEnd
}

// Run evolves descriptors against strata and returns the fittest descriptor
// of the final generation. Strata are not modified. The context is checked
// between generations; a started generation always completes.
func (s *Search) Run(ctx context.Context, strata []*dataset.Dataset) (Result, error) {
	if len(strata) == 0 {
		return Result{}, ErrNoData
	}
	numInput, numOutput := strata[0].NumInput(), strata[0].NumOutput()
	total := 0
	for _, stratum := range strata {
		total += stratum.Len()
	}
	if total == 0 {
		return Result{}, ErrNoData
	}

	population := []ScoredDescriptor{{Descriptor: genome.Default(numInput, numOutput), Fitness: math.Inf(1)}}
	bestEver := math.Inf(1)
	diagnostics := make([]model.GenerationDiagnostics, 0, s.cfg.Generations)

	for gen := 0; gen < s.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		started := time.Now()

		big := s.BigMutationChance(gen)
		offspring, err := s.breed(population, big)
		if err != nil {
			return Result{}, err
		}
		scored, err := s.evaluate(offspring, strata)
		if err != nil {
			return Result{}, fmt.Errorf("generation %d: %w", gen+1, err)
		}
		if scored[0].Fitness < bestEver {
			bestEver = scored[0].Fitness
		}

		diag := summarizeGeneration(scored, gen+1, big, bestEver)
		diag.ElapsedSeconds = time.Since(started).Seconds()
		diagnostics = append(diagnostics, diag)
		if s.cfg.Reporter != nil {
			s.cfg.Reporter(diag)
		}

		if len(scored) > s.cfg.Survivors {
			scored = scored[:s.cfg.Survivors]
		}
		population = scored
	}

	return Result{
		Best:            population[0].Descriptor.Clone(),
		Fitness:         population[0].Fitness,
		BestEverFitness: bestEver,
		Diagnostics:     diagnostics,
		Survivors:       population,
	}, nil
}

func (s *Search) breed(population []ScoredDescriptor, big float64) ([]genome.Descriptor, error) {
	offspring := make([]genome.Descriptor, 0, s.cfg.Offspring)
	for i := 0; i < s.cfg.Offspring; i++ {
		first, err := s.cfg.Selector.PickParent(s.rng, population)
		if err != nil {
			return nil, err
		}
		second, err := s.cfg.Selector.PickParent(s.rng, population)
		if err != nil {
			return nil, err
		}
		child := first.Clone()
		child.Merge(s.rng, second)
		child.Mutate(s.rng, s.cfg.SmallMutationChance, s.cfg.SmallMutationFactor, big)
		offspring = append(offspring, child)
	}
	return offspring, nil
}

type indexedScore struct {
	index int
	ScoredDescriptor
}

// evaluate scores offspring on a bounded pool. Each worker takes one
// contiguous block, works on a private copy of the strata and owns a random
// source seeded from the search generator. The result is sorted by ascending
// fitness, ties in offspring order.
func (s *Search) evaluate(offspring []genome.Descriptor, strata []*dataset.Dataset) ([]ScoredDescriptor, error) {
	workers := s.cfg.Workers
	if workers > len(offspring) {
		workers = len(offspring)
	}
	block := len(offspring) / workers
	seeds := make([]int64, workers)
	for w := range seeds {
		seeds[w] = s.rng.Int63()
	}

	var (
		dataMu   sync.Mutex
		resultMu sync.Mutex
		results  = make([]indexedScore, 0, len(offspring))
	)
	p := pool.New().WithMaxGoroutines(workers).WithErrors().WithFirstError()
	for w := 0; w < workers; w++ {
		lo, hi := w*block, (w+1)*block
		if w == workers-1 {
			hi = len(offspring)
		}
		seed := seeds[w]
		p.Go(func() error {
			rng := rand.New(rand.NewSource(seed))

			dataMu.Lock()
			local := make([]*dataset.Dataset, len(strata))
			for i, stratum := range strata {
				local[i] = stratum.Duplicate()
			}
			dataMu.Unlock()

			for i := lo; i < hi; i++ {
				fitness, err := Evaluate(rng, offspring[i], local, s.cfg.InnerFolds, s.cfg.InnerRepeats, s.cfg.Trainer)
				if err != nil {
					return fmt.Errorf("offspring %d: %w", i, err)
				}
				resultMu.Lock()
				results = append(results, indexedScore{index: i, ScoredDescriptor: ScoredDescriptor{Descriptor: offspring[i], Fitness: fitness}})
				resultMu.Unlock()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Fitness != results[j].Fitness {
			return results[i].Fitness < results[j].Fitness
		}
		return results[i].index < results[j].index
	})
	scored := make([]ScoredDescriptor, len(results))
	for i, r := range results {
		scored[i] = r.ScoredDescriptor
	}
	return scored, nil
}

// Evaluate returns the fitness of d: the validation error of one freshly
// initialised and early-stopped network per fold, summed over every fold and
// repeat of a stratified cross-validation over strata. Strata are shuffled.
func Evaluate(rng *rand.Rand, d genome.Descriptor, strata []*dataset.Dataset, folds, repeats int, trainer train.EarlyStopping) (float64, error) {
	net, err := d.CreateNetwork(rng)
	if err != nil {
		return 0, err
	}
	total := 0.0
	err = crossval.Run(rng, strata, folds, repeats, func(training, validation *dataset.Dataset, _, _ int) error {
		if err := d.InitializeWeights(net, training); err != nil {
			return err
		}
		best, err := trainer.Train(net, training, validation)
		if err != nil {
			return err
		}
		total += best
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
