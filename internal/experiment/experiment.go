package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"resectnet/internal/crossval"
	"resectnet/internal/dataset"
	"resectnet/internal/ensemble"
	"resectnet/internal/evo"
	"resectnet/internal/genome"
	"resectnet/internal/model"
	"resectnet/internal/stats"
	"resectnet/internal/storage"
)

var ErrNoSamples = errors.New("experiment needs samples")

// FoldHook observes the outer training and test partitions of every fold
// before the search starts on them.
type FoldHook func(fold, repeat int, training, testing *dataset.Dataset) error

type Config struct {
	RunID  string
	Inputs []string
	Seed   int64

	Search evo.Config

	OuterFolds      int
	OuterRepeats    int
	EnsembleFolds   int
	EnsembleRepeats int
	Threshold       float64

	FoldHook FoldHook
}

func DefaultConfig() Config {
	return Config{
		Seed:            1,
		Search:          evo.DefaultConfig(),
		OuterFolds:      10,
		OuterRepeats:    1,
		EnsembleFolds:   10,
		EnsembleRepeats: 1,
		Threshold:       0.5,
	}
}

func (c Config) Validate() error {
	if c.OuterFolds < 2 {
		return fmt.Errorf("outer folds must be >= 2")
	}
	if c.OuterRepeats < 1 {
		return fmt.Errorf("outer repeats must be >= 1")
	}
	if c.EnsembleFolds < 2 {
		return fmt.Errorf("ensemble folds must be >= 2")
	}
	if c.EnsembleRepeats < 1 {
		return fmt.Errorf("ensemble repeats must be >= 1")
	}
	return nil
}

type Result struct {
	Run         model.RunRecord
	Folds       []model.FoldResult
	Diagnostics []model.GenerationDiagnostics
}

// Run performs the nested cross-validation: samples are stratified by the
// first output against the class threshold, and every outer training part
// is searched, turned into an ensemble of the winning descriptor and scored
// on its held-out test part.
func Run(ctx context.Context, cfg Config, data *dataset.Dataset) (Result, error) {
	if data == nil || data.Len() == 0 {
		return Result{}, ErrNoSamples
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	classify := dataset.Threshold(cfg.Threshold)
	strata, err := dataset.Stratify(data, 2, classify)
	if err != nil {
		return Result{}, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	result := Result{
		Run: model.RunRecord{
			VersionedRecord: storage.Stamp(),
			ID:              cfg.RunID,
			CreatedAt:       time.Now().UTC(),
			Inputs:          append([]string(nil), cfg.Inputs...),
			Samples:         data.Len(),
			NumInput:        data.NumInput(),
			NumOutput:       data.NumOutput(),
			Seed:            cfg.Seed,
			OuterFolds:      cfg.OuterFolds,
			OuterRepeats:    cfg.OuterRepeats,
			Threshold:       cfg.Threshold,
		},
	}

	err = crossval.Run(rng, strata, cfg.OuterFolds, cfg.OuterRepeats, func(training, testing *dataset.Dataset, fold, repeat int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cfg.FoldHook != nil {
			if err := cfg.FoldHook(fold, repeat, training, testing); err != nil {
				return err
			}
		}

		inner, err := dataset.Stratify(training, 2, classify)
		if err != nil {
			return err
		}

		searchCfg := cfg.Search
		searchCfg.Seed = rng.Int63()
		searchCfg.Reporter = func(diag model.GenerationDiagnostics) {
			diag.OuterFold, diag.OuterRepeat = fold, repeat
			result.Diagnostics = append(result.Diagnostics, diag)
			if cfg.Search.Reporter != nil {
				cfg.Search.Reporter(diag)
			}
		}
		search, err := evo.NewSearch(searchCfg)
		if err != nil {
			return err
		}
		found, err := search.Run(ctx, inner)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		ens, err := BuildEnsemble(rng, found.Best, inner, cfg)
		if err != nil {
			return fmt.Errorf("ensemble: %w", err)
		}
		predictions, err := ens.Predict(testing)
		if err != nil {
			return err
		}

		foldResult := scoreFold(predictions, testing, cfg.Threshold)
		foldResult.VersionedRecord = result.Run.VersionedRecord
		foldResult.RunID = cfg.RunID
		foldResult.Fold = fold
		foldResult.Repeat = repeat
		foldResult.TrainSamples = training.Len()
		foldResult.SearchFitness = found.Fitness
		foldResult.BestEverFitness = found.BestEverFitness
		foldResult.EnsembleSize = ens.Len()
		foldResult.Descriptor = found.Best
		result.Folds = append(result.Folds, foldResult)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	result.Run.Summary = Summarize(result.Folds)
	return result, nil
}

// BuildEnsemble trains one network of d per fold of a cross-validation over
// strata, each early-stopped on its validation part, and bags them.
func BuildEnsemble(rng *rand.Rand, d genome.Descriptor, strata []*dataset.Dataset, cfg Config) (*ensemble.Ensemble, error) {
	net, err := d.CreateNetwork(rng)
	if err != nil {
		return nil, err
	}
	ens := ensemble.New()
	err = crossval.Run(rng, strata, cfg.EnsembleFolds, cfg.EnsembleRepeats, func(training, validation *dataset.Dataset, _, _ int) error {
		if err := d.InitializeWeights(net, training); err != nil {
			return err
		}
		if _, err := cfg.Search.Trainer.Train(net, training, validation); err != nil {
			return err
		}
		return ens.Add(net.Clone(rand.New(rand.NewSource(rng.Int63()))))
	})
	if err != nil {
		return nil, err
	}
	return ens, nil
}

func scoreFold(outputs [][]float64, testing *dataset.Dataset, threshold float64) model.FoldResult {
	targets := make([][]float64, testing.Len())
	predictions := make([]model.Prediction, testing.Len())
	for i := range targets {
		targets[i] = append([]float64(nil), testing.Output(i)...)
		predictions[i] = model.Prediction{Target: targets[i], Output: outputs[i]}
	}

	out := model.FoldResult{
		TestSamples: testing.Len(),
		MSE:         stats.MSE(outputs, targets),
		Accuracy:    stats.Accuracy(outputs, targets, threshold),
		Predictions: predictions,
	}
	if auc, ok := stats.AUC(outputs, targets, threshold); ok {
		out.AUC = &auc
	}
	return out
}

// Summarize aggregates fold metrics. AUC statistics only cover folds where
// it was defined.
func Summarize(folds []model.FoldResult) model.RunSummary {
	mses := make([]float64, 0, len(folds))
	accuracies := make([]float64, 0, len(folds))
	aucs := make([]float64, 0, len(folds))
	for _, fold := range folds {
		mses = append(mses, fold.MSE)
		accuracies = append(accuracies, fold.Accuracy)
		if fold.AUC != nil {
			aucs = append(aucs, *fold.AUC)
		}
	}

	summary := model.RunSummary{Folds: len(folds), AUCFolds: len(aucs)}
	summary.MeanMSE, summary.StdMSE = stats.Summarize(mses)
	summary.MeanAccuracy, summary.StdAccuracy = stats.Summarize(accuracies)
	summary.MeanAUC, summary.StdAUC = stats.Summarize(aucs)
	return summary
}
