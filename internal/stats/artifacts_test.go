package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"resectnet/internal/dataset"
	"resectnet/internal/genome"
	"resectnet/internal/model"
)

func sampleArtifacts(runID string) RunArtifacts {
	auc := 0.75
	return RunArtifacts{
		Config: RunConfig{
			RunID:       runID,
			Inputs:      []string{"data.train"},
			Seed:        1,
			Generations: 3,
			Offspring:   4,
			Survivors:   2,
			OuterFolds:  2,
			Threshold:   0.5,
		},
		Summary: model.RunSummary{Folds: 1, MeanMSE: 0.1, MeanAccuracy: 0.9, MeanAUC: auc, AUCFolds: 1},
		Folds: []model.FoldResult{{
			RunID:      runID,
			Fold:       1,
			Repeat:     0,
			MSE:        0.1,
			Accuracy:   0.9,
			AUC:        &auc,
			Descriptor: genome.Default(2, 1),
			Predictions: []model.Prediction{
				{Target: []float64{1}, Output: []float64{0.75}},
				{Target: []float64{0}, Output: []float64{0.25}},
			},
		}},
		GenerationDiagnostics: []model.GenerationDiagnostics{{OuterFold: 1, Generation: 1, BestFitness: 0.4}},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-123"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range artifactFiles {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, "run-123", outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range artifactFiles {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	if _, err := ExportRunArtifacts(baseDir, "missing", outDir); err == nil {
		t.Fatal("expected missing run error")
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestReadBackRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	if _, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-1")); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	cfg, ok, err := ReadRunConfig(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read config: ok=%t err=%v", ok, err)
	}
	if cfg.Generations != 3 || cfg.Inputs[0] != "data.train" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	folds, ok, err := ReadFoldResults(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read folds: ok=%t err=%v", ok, err)
	}
	if len(folds) != 1 || folds[0].AUC == nil || *folds[0].AUC != 0.75 {
		t.Fatalf("unexpected folds: %+v", folds)
	}
	if err := folds[0].Descriptor.Validate(); err != nil {
		t.Fatalf("descriptor did not survive round trip: %v", err)
	}

	diagnostics, ok, err := ReadGenerationDiagnostics(baseDir, "run-1")
	if err != nil || !ok || len(diagnostics) != 1 {
		t.Fatalf("read diagnostics: ok=%t err=%v len=%d", ok, err, len(diagnostics))
	}

	if _, ok, err := ReadRunConfig(baseDir, "missing"); ok || err != nil {
		t.Fatalf("missing config: ok=%t err=%v", ok, err)
	}
}

func TestWritePredictionsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.csv")
	if err := WritePredictions(path, sampleArtifacts("run-1").Folds); err != nil {
		t.Fatalf("write predictions: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read predictions: %v", err)
	}
	want := "fold,repeat,target1,output1\n1,0,1,0.75\n1,0,0,0.25\n"
	if string(data) != want {
		t.Fatalf("unexpected csv:\n%s", data)
	}
}

func TestRunIndexNewestFirst(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2024-01-01T00:00:00Z"},
		{RunID: "b", CreatedAtUTC: "2024-02-01T00:00:00Z"},
		{RunID: "a", CreatedAtUTC: "2024-03-01T00:00:00Z", MeanMSE: 0.2},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.RunID, err)
		}
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("expected 2 entries, got %+v", index)
	}
	if index[0].RunID != "a" || index[0].MeanMSE != 0.2 || index[1].RunID != "b" {
		t.Fatalf("unexpected order: %+v", index)
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{}); err == nil || !strings.Contains(err.Error(), "run id") {
		t.Fatalf("expected run id error, got %v", err)
	}
}

func TestWriteFoldDataIsExported(t *testing.T) {
	baseDir := t.TempDir()
	runDir, err := WriteRunArtifacts(baseDir, sampleArtifacts("run-7"))
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	trainSet, err := dataset.FromSamples([][]float64{{0.5, 1}, {0, -1}}, [][]float64{{1}, {0}})
	if err != nil {
		t.Fatalf("training set: %v", err)
	}
	testSet, err := dataset.FromSamples([][]float64{{0.25, 2}}, [][]float64{{1}})
	if err != nil {
		t.Fatalf("testing set: %v", err)
	}
	if err := WriteFoldData(runDir, 1, 0, trainSet, testSet); err != nil {
		t.Fatalf("write fold data: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(runDir, "test-1-0.csv"))
	if err != nil {
		t.Fatalf("read test csv: %v", err)
	}
	if want := "input0,input1,output0\n0.25,2,1\n"; string(data) != want {
		t.Fatalf("unexpected test csv:\n%s", data)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, "run-7", filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, name := range []string{"train-1-0.csv", "test-1-0.csv"} {
		if _, err := os.Stat(filepath.Join(exportedDir, name)); err != nil {
			t.Fatalf("expected exported %s: %v", name, err)
		}
	}
}
