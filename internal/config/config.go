package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"resectnet/internal/evo"
	"resectnet/internal/experiment"
	"resectnet/internal/storage"
	"resectnet/internal/train"
)

type Search struct {
	Generations            int     `toml:"generations"`
	Offspring              int     `toml:"offspring"`
	Survivors              int     `toml:"survivors"`
	BigMutationStart       float64 `toml:"big_mutation_start"`
	BigMutationEnd         float64 `toml:"big_mutation_end"`
	BigMutationCoefficient float64 `toml:"big_mutation_coefficient"`
	SmallMutationChance    float64 `toml:"small_mutation_chance"`
	SmallMutationFactor    float64 `toml:"small_mutation_factor"`
	Selection              string  `toml:"selection"`
	TournamentSize         int     `toml:"tournament_size"`
}

type CrossValidation struct {
	Folds   int `toml:"folds"`
	Repeats int `toml:"repeats"`
}

type Storage struct {
	Backend      string `toml:"backend"`
	Path         string `toml:"path"`
	ArtifactsDir string `toml:"artifacts_dir"`
}

// Config is the on-disk run configuration. Zero sections in a file keep
// their defaults.
type Config struct {
	Seed      int64   `toml:"seed"`
	Workers   int     `toml:"workers"`
	Threshold float64 `toml:"threshold"`

	Search   Search              `toml:"search"`
	Trainer  train.EarlyStopping `toml:"trainer"`
	Inner    CrossValidation     `toml:"inner"`
	Outer    CrossValidation     `toml:"outer"`
	Ensemble CrossValidation     `toml:"ensemble"`
	Storage  Storage             `toml:"storage"`
}

func Default() Config {
	search := evo.DefaultConfig()
	exp := experiment.DefaultConfig()
	return Config{
		Seed:      1,
		Workers:   runtime.NumCPU(),
		Threshold: exp.Threshold,
		Search: Search{
			Generations:            search.Generations,
			Offspring:              search.Offspring,
			Survivors:              search.Survivors,
			BigMutationStart:       search.BigMutationStart,
			BigMutationEnd:         search.BigMutationEnd,
			BigMutationCoefficient: search.BigMutationCoefficient,
			SmallMutationChance:    search.SmallMutationChance,
			SmallMutationFactor:    search.SmallMutationFactor,
			Selection:              "uniform",
			TournamentSize:         2,
		},
		Trainer:  search.Trainer,
		Inner:    CrossValidation{Folds: search.InnerFolds, Repeats: search.InnerRepeats},
		Outer:    CrossValidation{Folds: exp.OuterFolds, Repeats: exp.OuterRepeats},
		Ensemble: CrossValidation{Folds: exp.EnsembleFolds, Repeats: exp.EnsembleRepeats},
		Storage:  Storage{Backend: storage.BackendMemory, ArtifactsDir: "runs"},
	}
}

// Load decodes the TOML file at path over the defaults. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	md, err := toml.NewDecoder(f).Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return Config{}, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0, 1]")
	}
	if err := storage.ValidateBackend(c.Storage.Backend, c.Storage.Path); err != nil {
		if errors.Is(err, storage.ErrSQLitePathRequired) {
			return fmt.Errorf("storage.path: %w", err)
		}
		return fmt.Errorf("storage.backend: %w", err)
	}
	if _, err := c.SearchConfig(); err != nil {
		return err
	}
	exp, err := c.ExperimentConfig()
	if err != nil {
		return err
	}
	return exp.Validate()
}

// SearchConfig converts the search, trainer and inner sections into a
// search configuration.
func (c Config) SearchConfig() (evo.Config, error) {
	selector, err := evo.SelectorByName(c.Search.Selection, c.Search.TournamentSize)
	if err != nil {
		return evo.Config{}, err
	}
	cfg := evo.Config{
		Generations:            c.Search.Generations,
		Offspring:              c.Search.Offspring,
		Survivors:              c.Search.Survivors,
		BigMutationStart:       c.Search.BigMutationStart,
		BigMutationEnd:         c.Search.BigMutationEnd,
		BigMutationCoefficient: c.Search.BigMutationCoefficient,
		SmallMutationChance:    c.Search.SmallMutationChance,
		SmallMutationFactor:    c.Search.SmallMutationFactor,
		InnerFolds:             c.Inner.Folds,
		InnerRepeats:           c.Inner.Repeats,
		Trainer:                c.Trainer,
		Workers:                c.Workers,
		Seed:                   c.Seed,
		Selector:               selector,
	}
	if _, err := evo.NewSearch(cfg); err != nil {
		return evo.Config{}, fmt.Errorf("search: %w", err)
	}
	return cfg, nil
}

func (c Config) ExperimentConfig() (experiment.Config, error) {
	search, err := c.SearchConfig()
	if err != nil {
		return experiment.Config{}, err
	}
	return experiment.Config{
		Seed:            c.Seed,
		Search:          search,
		OuterFolds:      c.Outer.Folds,
		OuterRepeats:    c.Outer.Repeats,
		EnsembleFolds:   c.Ensemble.Folds,
		EnsembleRepeats: c.Ensemble.Repeats,
		Threshold:       c.Threshold,
	}, nil
}
