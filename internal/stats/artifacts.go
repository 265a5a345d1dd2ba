package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"resectnet/internal/dataset"
	"resectnet/internal/model"
)

const runIndexFile = "run_index.json"

type RunConfig struct {
	RunID                  string   `json:"run_id"`
	Inputs                 []string `json:"inputs"`
	Seed                   int64    `json:"seed"`
	Workers                int      `json:"workers"`
	Generations            int      `json:"generations"`
	Offspring              int      `json:"offspring"`
	Survivors              int      `json:"survivors"`
	BigMutationStart       float64  `json:"big_mutation_start"`
	BigMutationEnd         float64  `json:"big_mutation_end"`
	BigMutationCoefficient float64  `json:"big_mutation_coefficient"`
	SmallMutationChance    float64  `json:"small_mutation_chance"`
	SmallMutationFactor    float64  `json:"small_mutation_factor"`
	Selection              string   `json:"selection"`
	TournamentSize         int      `json:"tournament_size,omitempty"`
	InnerFolds             int      `json:"inner_folds"`
	InnerRepeats           int      `json:"inner_repeats"`
	OuterFolds             int      `json:"outer_folds"`
	OuterRepeats           int      `json:"outer_repeats"`
	EnsembleFolds          int      `json:"ensemble_folds"`
	EnsembleRepeats        int      `json:"ensemble_repeats"`
	MaxEpochs              int      `json:"max_epochs"`
	Patience               int      `json:"patience"`
	Threshold              float64  `json:"threshold"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	Summary               model.RunSummary              `json:"summary"`
	Folds                 []model.FoldResult            `json:"folds"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
}

type RunIndexEntry struct {
	RunID        string   `json:"run_id"`
	Inputs       []string `json:"inputs"`
	Samples      int      `json:"samples"`
	OuterFolds   int      `json:"outer_folds"`
	OuterRepeats int      `json:"outer_repeats"`
	Seed         int64    `json:"seed"`
	MeanMSE      float64  `json:"mean_mse"`
	MeanAccuracy float64  `json:"mean_accuracy"`
	MeanAUC      float64  `json:"mean_auc"`
	CreatedAtUTC string   `json:"created_at_utc"`
}

var artifactFiles = []string{"config.json", "summary.json", "folds.json", "generation_diagnostics.json", "predictions.csv"}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "folds.json"), artifacts.Folds); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "generation_diagnostics.json"), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	if err := WritePredictions(filepath.Join(runDir, "predictions.csv"), artifacts.Folds); err != nil {
		return "", err
	}

	return runDir, nil
}

// WritePredictions writes one CSV row per predicted test sample: outer fold,
// repeat, target values and ensemble outputs.
func WritePredictions(path string, folds []model.FoldResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	targets, outputs := 0, 0
	for _, fold := range folds {
		if len(fold.Predictions) > 0 {
			targets = len(fold.Predictions[0].Target)
			outputs = len(fold.Predictions[0].Output)
			break
		}
	}
	header := []string{"fold", "repeat"}
	for i := 0; i < targets; i++ {
		header = append(header, "target"+strconv.Itoa(i+1))
	}
	for i := 0; i < outputs; i++ {
		header = append(header, "output"+strconv.Itoa(i+1))
	}

	rows := make([][]float64, 0, 64)
	for _, fold := range folds {
		for _, p := range fold.Predictions {
			row := make([]float64, 0, 2+len(p.Target)+len(p.Output))
			row = append(row, float64(fold.Fold), float64(fold.Repeat))
			row = append(row, p.Target...)
			row = append(row, p.Output...)
			rows = append(rows, row)
		}
	}
	if err := dataset.WriteCSV(file, header, rows); err != nil {
		return err
	}
	return file.Sync()
}

// WriteFoldData writes the outer training and test partitions of one fold as
// train-<fold>-<repeat>.csv and test-<fold>-<repeat>.csv under runDir.
func WriteFoldData(runDir string, fold, repeat int, training, testing *dataset.Dataset) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	header := make([]string, 0, training.NumInput()+training.NumOutput())
	for i := 0; i < training.NumInput(); i++ {
		header = append(header, "input"+strconv.Itoa(i))
	}
	for i := 0; i < training.NumOutput(); i++ {
		header = append(header, "output"+strconv.Itoa(i))
	}

	suffix := fmt.Sprintf("-%d-%d.csv", fold, repeat)
	for prefix, part := range map[string]*dataset.Dataset{"train": training, "test": testing} {
		file, err := os.Create(filepath.Join(runDir, prefix+suffix))
		if err != nil {
			return err
		}
		if err := dataset.WriteCSV(file, header, part.Rows()); err != nil {
			_ = file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}
	return nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := append([]string(nil), artifactFiles...)
	for _, pattern := range []string{"train-*.csv", "test-*.csv"} {
		matches, err := filepath.Glob(filepath.Join(src, pattern))
		if err != nil {
			return "", err
		}
		for _, match := range matches {
			files = append(files, filepath.Base(match))
		}
	}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadFoldResults(baseDir, runID string) ([]model.FoldResult, bool, error) {
	var folds []model.FoldResult
	ok, err := readJSON(filepath.Join(baseDir, runID, "folds.json"), &folds)
	return folds, ok, err
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, "generation_diagnostics.json"), &diagnostics)
	return diagnostics, ok, err
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
