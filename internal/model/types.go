package model

import (
	"time"

	"resectnet/internal/genome"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one nested cross-validation experiment.
type RunRecord struct {
	VersionedRecord
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	Inputs       []string   `json:"inputs"`
	Samples      int        `json:"samples"`
	NumInput     int        `json:"num_input"`
	NumOutput    int        `json:"num_output"`
	Seed         int64      `json:"seed"`
	OuterFolds   int        `json:"outer_folds"`
	OuterRepeats int        `json:"outer_repeats"`
	Threshold    float64    `json:"threshold"`
	Summary      RunSummary `json:"summary"`
}

// RunSummary aggregates test-fold metrics across the outer loop. AUC figures
// only cover folds that contained both classes.
type RunSummary struct {
	Folds        int     `json:"folds"`
	MeanMSE      float64 `json:"mean_mse"`
	StdMSE       float64 `json:"std_mse"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	StdAccuracy  float64 `json:"std_accuracy"`
	MeanAUC      float64 `json:"mean_auc"`
	StdAUC       float64 `json:"std_auc"`
	AUCFolds     int     `json:"auc_folds"`
}

// FoldResult is the outcome of one outer fold: the searched descriptor, the
// ensemble's test metrics and its predictions.
type FoldResult struct {
	VersionedRecord
	RunID           string            `json:"run_id"`
	Fold            int               `json:"fold"`
	Repeat          int               `json:"repeat"`
	TrainSamples    int               `json:"train_samples"`
	TestSamples     int               `json:"test_samples"`
	SearchFitness   float64           `json:"search_fitness"`
	BestEverFitness float64           `json:"best_ever_fitness"`
	EnsembleSize    int               `json:"ensemble_size"`
	MSE             float64           `json:"mse"`
	Accuracy        float64           `json:"accuracy"`
	AUC             *float64          `json:"auc,omitempty"`
	Descriptor      genome.Descriptor `json:"descriptor"`
	Predictions     []Prediction      `json:"predictions"`
}

type Prediction struct {
	Target []float64 `json:"target"`
	Output []float64 `json:"output"`
}

// GenerationDiagnostics summarizes one generation of a search. OuterFold and
// OuterRepeat are -1 for searches run outside an experiment.
type GenerationDiagnostics struct {
	OuterFold          int     `json:"outer_fold"`
	OuterRepeat        int     `json:"outer_repeat"`
	Generation         int     `json:"generation"`
	BigMutationChance  float64 `json:"big_mutation_chance"`
	Evaluated          int     `json:"evaluated"`
	BestFitness        float64 `json:"best_fitness"`
	MeanFitness        float64 `json:"mean_fitness"`
	StdFitness         float64 `json:"std_fitness"`
	WorstFitness       float64 `json:"worst_fitness"`
	BestEverFitness    float64 `json:"best_ever_fitness"`
	DistinctTopologies int     `json:"distinct_topologies"`
	MeanHiddenLayers   float64 `json:"mean_hidden_layers"`
	BestAlgorithm      string  `json:"best_algorithm"`
	ElapsedSeconds     float64 `json:"elapsed_seconds"`
}
