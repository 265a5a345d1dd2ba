package experiment

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"resectnet/internal/dataset"
	"resectnet/internal/evo"
	"resectnet/internal/genome"
	"resectnet/internal/model"
	"resectnet/internal/train"
)

func separableData(t *testing.T, perClass int) *dataset.Dataset {
	t.Helper()
	d := dataset.New(2, 1, 2*perClass)
	for i := 0; i < perClass; i++ {
		jitter := float64(i) / float64(4*perClass)
		if err := d.Append([]float64{-0.8 + jitter, -0.6 + jitter}, []float64{0}); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := d.Append([]float64{0.8 - jitter, 0.6 - jitter}, []float64{1}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return d
}

func tinyConfig() Config {
	search := evo.DefaultConfig()
	search.Generations = 2
	search.Offspring = 3
	search.Survivors = 2
	search.InnerFolds = 2
	search.InnerRepeats = 1
	search.Trainer = train.EarlyStopping{MaxEpochs: 10, Patience: 3}
	search.Workers = 2

	return Config{
		RunID:           "run-test",
		Inputs:          []string{"memory"},
		Seed:            3,
		Search:          search,
		OuterFolds:      2,
		OuterRepeats:    1,
		EnsembleFolds:   2,
		EnsembleRepeats: 1,
		Threshold:       0.5,
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "outer folds", mutate: func(c *Config) { c.OuterFolds = 1 }},
		{name: "outer repeats", mutate: func(c *Config) { c.OuterRepeats = 0 }},
		{name: "ensemble folds", mutate: func(c *Config) { c.EnsembleFolds = 1 }},
		{name: "ensemble repeats", mutate: func(c *Config) { c.EnsembleRepeats = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestRunProducesFoldResults(t *testing.T) {
	data := separableData(t, 8)
	cfg := tinyConfig()

	hooked := 0
	cfg.FoldHook = func(fold, repeat int, training, testing *dataset.Dataset) error {
		hooked++
		if training.Len()+testing.Len() != data.Len() {
			t.Errorf("fold %d: partitions cover %d of %d samples", fold, training.Len()+testing.Len(), data.Len())
		}
		return nil
	}
	reported := 0
	cfg.Search.Reporter = func(diag model.GenerationDiagnostics) {
		reported++
		if diag.OuterFold < 0 || diag.OuterRepeat != 0 {
			t.Errorf("diagnostics not labelled with the outer fold: %+v", diag)
		}
	}

	result, err := Run(context.Background(), cfg, data)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if hooked != 2 || len(result.Folds) != 2 {
		t.Fatalf("expected 2 outer folds, hooked=%d folds=%d", hooked, len(result.Folds))
	}
	if reported != 4 || len(result.Diagnostics) != 4 {
		t.Fatalf("expected 4 generation reports, got %d/%d", reported, len(result.Diagnostics))
	}

	tested := 0
	for _, fold := range result.Folds {
		tested += fold.TestSamples
		if fold.RunID != "run-test" || fold.EnsembleSize != 2 {
			t.Fatalf("unexpected fold header: %+v", fold)
		}
		if len(fold.Predictions) != fold.TestSamples {
			t.Fatalf("fold %d: %d predictions for %d samples", fold.Fold, len(fold.Predictions), fold.TestSamples)
		}
		if math.IsNaN(fold.MSE) || fold.MSE < 0 || fold.Accuracy < 0 || fold.Accuracy > 1 {
			t.Fatalf("fold %d metrics out of range: %+v", fold.Fold, fold)
		}
		if fold.AUC == nil {
			t.Fatalf("fold %d holds both classes, auc must be defined", fold.Fold)
		}
		if err := fold.Descriptor.Validate(); err != nil {
			t.Fatalf("fold %d descriptor: %v", fold.Fold, err)
		}
	}
	if tested != data.Len() {
		t.Fatalf("test folds cover %d of %d samples", tested, data.Len())
	}

	run := result.Run
	if run.ID != "run-test" || run.Samples != 16 || run.NumInput != 2 || run.Summary.Folds != 2 || run.Summary.AUCFolds != 2 {
		t.Fatalf("unexpected run record: %+v", run)
	}
}

func TestRunAssignsRunID(t *testing.T) {
	cfg := tinyConfig()
	cfg.RunID = ""
	cfg.Search.Generations = 1
	result, err := Run(context.Background(), cfg, separableData(t, 6))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Run.ID == "" || result.Folds[0].RunID != result.Run.ID {
		t.Fatalf("run id not propagated: run=%q fold=%q", result.Run.ID, result.Folds[0].RunID)
	}
}

func TestRunRejectsEmptyData(t *testing.T) {
	if _, err := Run(context.Background(), tinyConfig(), dataset.New(2, 1, 0)); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, tinyConfig(), separableData(t, 6)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestFoldHookErrorAborts(t *testing.T) {
	cfg := tinyConfig()
	boom := errors.New("boom")
	cfg.FoldHook = func(int, int, *dataset.Dataset, *dataset.Dataset) error { return boom }
	if _, err := Run(context.Background(), cfg, separableData(t, 6)); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
}

func TestBuildEnsembleOneMemberPerFold(t *testing.T) {
	data := separableData(t, 6)
	strata, err := dataset.Stratify(data, 2, dataset.Threshold(0.5))
	if err != nil {
		t.Fatalf("stratify: %v", err)
	}
	cfg := tinyConfig()
	cfg.EnsembleFolds = 3
	cfg.EnsembleRepeats = 2

	ens, err := BuildEnsemble(rand.New(rand.NewSource(1)), genome.Default(2, 1), strata, cfg)
	if err != nil {
		t.Fatalf("build ensemble: %v", err)
	}
	if ens.Len() != 6 {
		t.Fatalf("expected 6 members, got %d", ens.Len())
	}
	out, err := ens.Run([]float64{0.8, 0.6})
	if err != nil {
		t.Fatalf("run ensemble: %v", err)
	}
	if len(out) != 1 || math.IsNaN(out[0]) {
		t.Fatalf("unexpected ensemble output: %v", out)
	}
}

func TestSummarizeSkipsUndefinedAUC(t *testing.T) {
	auc := 0.8
	summary := Summarize([]model.FoldResult{
		{MSE: 0.1, Accuracy: 1, AUC: &auc},
		{MSE: 0.3, Accuracy: 0.5},
	})
	if summary.Folds != 2 || summary.AUCFolds != 1 || summary.MeanAUC != 0.8 || summary.StdAUC != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if math.Abs(summary.MeanMSE-0.2) > 1e-12 || summary.MeanAccuracy != 0.75 {
		t.Fatalf("unexpected means: %+v", summary)
	}
}
