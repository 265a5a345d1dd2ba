package main

import (
	"context"
	"flag"

	"resectnet/internal/config"
	"resectnet/pkg/resectnet"
)

// configFlags are shared by the commands that run a search. Flags override
// the config file only when set on the command line.
type configFlags struct {
	path         *string
	storeKind    *string
	dbPath       *string
	artifactsDir *string

	seed        *int64
	workers     *int
	generations *int
	offspring   *int
	survivors   *int
	selection   *string
	threshold   *float64
	maxEpochs   *int
	patience    *int
	innerFolds  *int
	outerFolds  *int
	outerRepeat *int
	ensemble    *int

	resolved config.Storage
}

func bindConfigFlags(fs *flag.FlagSet) *configFlags {
	def := config.Default()
	return &configFlags{
		path:         fs.String("config", "", "optional TOML config path"),
		storeKind:    fs.String("store", "", "store backend: memory|sqlite (overrides config)"),
		dbPath:       fs.String("db-path", "", "sqlite database path (overrides config)"),
		artifactsDir: fs.String("artifacts-dir", "", "run artifacts directory (overrides config)"),
		seed:         fs.Int64("seed", def.Seed, "rng seed"),
		workers:      fs.Int("workers", def.Workers, "fitness evaluation workers"),
		generations:  fs.Int("gens", def.Search.Generations, "generation count"),
		offspring:    fs.Int("offspring", def.Search.Offspring, "networks evaluated per generation"),
		survivors:    fs.Int("survivors", def.Search.Survivors, "descriptors kept as parents"),
		selection:    fs.String("selection", def.Search.Selection, "parent selection: uniform|tournament"),
		threshold:    fs.Float64("threshold", def.Threshold, "class threshold on the first output"),
		maxEpochs:    fs.Int("max-epochs", def.Trainer.MaxEpochs, "training epoch limit"),
		patience:     fs.Int("patience", def.Trainer.Patience, "epochs without improvement before stopping"),
		innerFolds:   fs.Int("inner-folds", def.Inner.Folds, "cross-validation folds scoring each descriptor"),
		outerFolds:   fs.Int("outer-folds", def.Outer.Folds, "outer cross-validation folds"),
		outerRepeat:  fs.Int("outer-repeats", def.Outer.Repeats, "outer cross-validation repeats"),
		ensemble:     fs.Int("ensemble-folds", def.Ensemble.Folds, "ensemble members per repeat"),
	}
}

func (f *configFlags) resolve(fs *flag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if *f.path != "" {
		loaded, err := config.Load(*f.path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "store":
			cfg.Storage.Backend = *f.storeKind
		case "db-path":
			cfg.Storage.Path = *f.dbPath
		case "artifacts-dir":
			cfg.Storage.ArtifactsDir = *f.artifactsDir
		case "seed":
			cfg.Seed = *f.seed
		case "workers":
			cfg.Workers = *f.workers
		case "gens":
			cfg.Search.Generations = *f.generations
		case "offspring":
			cfg.Search.Offspring = *f.offspring
		case "survivors":
			cfg.Search.Survivors = *f.survivors
		case "selection":
			cfg.Search.Selection = *f.selection
		case "threshold":
			cfg.Threshold = *f.threshold
		case "max-epochs":
			cfg.Trainer.MaxEpochs = *f.maxEpochs
		case "patience":
			cfg.Trainer.Patience = *f.patience
		case "inner-folds":
			cfg.Inner.Folds = *f.innerFolds
		case "outer-folds":
			cfg.Outer.Folds = *f.outerFolds
		case "outer-repeats":
			cfg.Outer.Repeats = *f.outerRepeat
		case "ensemble-folds":
			cfg.Ensemble.Folds = *f.ensemble
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	f.resolved = cfg.Storage
	return cfg, nil
}

func (f *configFlags) client(ctx context.Context) (*resectnet.Client, error) {
	return resectnet.NewClient(ctx, resectnet.Options{
		StoreKind:    f.resolved.Backend,
		DBPath:       f.resolved.Path,
		ArtifactsDir: f.resolved.ArtifactsDir,
	})
}
