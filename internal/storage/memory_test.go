package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"resectnet/internal/genome"
	"resectnet/internal/model"
)

func sampleRun(id string, created time.Time) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: Stamp(),
		ID:              id,
		CreatedAt:       created,
		Inputs:          []string{"cancer.train"},
		Samples:         40,
		NumInput:        2,
		NumOutput:       1,
		OuterFolds:      5,
		OuterRepeats:    1,
		Threshold:       0.5,
		Summary:         model.RunSummary{Folds: 5, MeanMSE: 0.12, MeanAccuracy: 0.8},
	}
}

func sampleFolds(runID string) []model.FoldResult {
	auc := 0.9
	return []model.FoldResult{{
		VersionedRecord: Stamp(),
		RunID:           runID,
		Fold:            0,
		MSE:             0.1,
		Accuracy:        0.8,
		AUC:             &auc,
		Descriptor:      genome.Default(2, 1),
		Predictions:     []model.Prediction{{Target: []float64{1}, Output: []float64{0.7}}},
	}}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), sampleRun("r1", time.Now())); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestMemoryStoreRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "mid"} {
		offset := []time.Duration{0, 2 * time.Hour, time.Hour}[i]
		if err := store.SaveRun(ctx, sampleRun(id, base.Add(offset))); err != nil {
			t.Fatalf("save run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "new" || runs[1].ID != "mid" || runs[2].ID != "old" {
		t.Fatalf("unexpected run order: %+v", runs)
	}

	run, ok, err := store.GetRun(ctx, "mid")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	run.Inputs[0] = "mutated"
	again, _, _ := store.GetRun(ctx, "mid")
	if again.Inputs[0] != "cancer.train" {
		t.Fatal("stored run shares its inputs slice with callers")
	}

	if _, ok, err := store.GetRun(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing run: ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreFoldResultsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := store.SaveFoldResults(ctx, "run-1", sampleFolds("run-1")); err != nil {
		t.Fatalf("save folds: %v", err)
	}
	folds, ok, err := store.GetFoldResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("get folds: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted fold results")
	}
	if len(folds) != 1 || folds[0].AUC == nil || *folds[0].AUC != 0.9 {
		t.Fatalf("unexpected folds: %+v", folds)
	}
}

func TestMemoryStoreGenerationDiagnosticsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.GenerationDiagnostics{
		{OuterFold: 0, Generation: 1, BestFitness: 0.3, MeanFitness: 0.4, DistinctTopologies: 2},
		{OuterFold: 0, Generation: 2, BestFitness: 0.2, MeanFitness: 0.35, DistinctTopologies: 3},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run-1", input); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	output, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted diagnostics")
	}
	if len(output) != len(input) || output[1].DistinctTopologies != input[1].DistinctTopologies {
		t.Fatalf("unexpected diagnostics: %+v", output)
	}
}
