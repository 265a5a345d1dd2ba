package resectnet

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"resectnet/internal/config"
	"resectnet/internal/dataset"
	"resectnet/internal/evo"
	"resectnet/internal/experiment"
	"resectnet/internal/genome"
	"resectnet/internal/model"
	"resectnet/internal/stats"
	"resectnet/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "resectnet.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
}

type Client struct {
	store storage.Store

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Inputs []string
	Config config.Config
	// SaveFoldData writes every outer training and test partition next to
	// the run artifacts.
	SaveFoldData bool
	Reporter     evo.Reporter
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Samples      int
	Summary      model.RunSummary
	Folds        []model.FoldResult
	Elapsed      time.Duration
}

type EvolveRequest struct {
	Inputs   []string
	Config   config.Config
	Reporter evo.Reporter
}

type EvolveSummary struct {
	Samples         int
	Best            genome.Descriptor
	Fitness         float64
	BestEverFitness float64
	Diagnostics     []model.GenerationDiagnostics
	Elapsed         time.Duration
}

type RunsRequest struct {
	Limit int
}

type ShowRequest struct {
	RunID  string
	Latest bool
}

type ShowSummary struct {
	Run         stats.RunIndexEntry
	Folds       []model.FoldResult
	Diagnostics []model.GenerationDiagnostics
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// NewClient opens and initializes the configured store.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.BackendMemory
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.Open(ctx, storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.Close(c.store)
}

// Run executes a nested cross-validation experiment over the merged input
// files, persists its records and writes its artifacts.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	started := time.Now()
	data, err := dataset.LoadFiles(req.Inputs...)
	if err != nil {
		return RunSummary{}, err
	}

	cfg, err := req.Config.ExperimentConfig()
	if err != nil {
		return RunSummary{}, err
	}
	cfg.RunID = uuid.NewString()
	cfg.Inputs = append([]string(nil), req.Inputs...)
	cfg.Search.Reporter = req.Reporter
	runDir := filepath.Join(c.artifactsDir, cfg.RunID)
	if req.SaveFoldData {
		cfg.FoldHook = func(fold, repeat int, training, testing *dataset.Dataset) error {
			return stats.WriteFoldData(runDir, fold, repeat, training, testing)
		}
	}

	result, err := experiment.Run(ctx, cfg, data)
	if err != nil {
		return RunSummary{}, err
	}

	if err := c.store.SaveRun(ctx, result.Run); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveFoldResults(ctx, result.Run.ID, result.Folds); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, result.Run.ID, result.Diagnostics); err != nil {
		return RunSummary{}, err
	}

	runDir, err = stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config:                runConfig(result.Run.ID, req.Inputs, req.Config),
		Summary:               result.Run.Summary,
		Folds:                 result.Folds,
		GenerationDiagnostics: result.Diagnostics,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, indexEntry(result.Run)); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:        result.Run.ID,
		ArtifactsDir: runDir,
		Samples:      result.Run.Samples,
		Summary:      result.Run.Summary,
		Folds:        result.Folds,
		Elapsed:      time.Since(started),
	}, nil
}

// Evolve runs a single search over all samples and returns the winning
// descriptor. Nothing is persisted.
func (c *Client) Evolve(ctx context.Context, req EvolveRequest) (EvolveSummary, error) {
	started := time.Now()
	data, err := dataset.LoadFiles(req.Inputs...)
	if err != nil {
		return EvolveSummary{}, err
	}
	strata, err := dataset.Stratify(data, 2, dataset.Threshold(req.Config.Threshold))
	if err != nil {
		return EvolveSummary{}, err
	}

	cfg, err := req.Config.SearchConfig()
	if err != nil {
		return EvolveSummary{}, err
	}
	cfg.Reporter = req.Reporter
	search, err := evo.NewSearch(cfg)
	if err != nil {
		return EvolveSummary{}, err
	}
	result, err := search.Run(ctx, strata)
	if err != nil {
		return EvolveSummary{}, err
	}

	return EvolveSummary{
		Samples:         data.Len(),
		Best:            result.Best,
		Fitness:         result.Fitness,
		BestEverFitness: result.BestEverFitness,
		Diagnostics:     result.Diagnostics,
		Elapsed:         time.Since(started),
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]stats.RunIndexEntry, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return entries, nil
}

// Show returns the index entry, fold results and search diagnostics of a
// run. Records come from the store when it holds them and from the run
// artifacts otherwise.
func (c *Client) Show(ctx context.Context, req ShowRequest) (ShowSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ShowSummary{}, err
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return ShowSummary{}, err
	}
	summary := ShowSummary{Run: stats.RunIndexEntry{RunID: runID}}
	for _, entry := range entries {
		if entry.RunID == runID {
			summary.Run = entry
			break
		}
	}

	folds, ok, err := c.store.GetFoldResults(ctx, runID)
	if err != nil {
		return ShowSummary{}, err
	}
	if !ok {
		folds, ok, err = stats.ReadFoldResults(c.artifactsDir, runID)
		if err != nil {
			return ShowSummary{}, err
		}
		if !ok {
			return ShowSummary{}, fmt.Errorf("fold results not found for run id: %s", runID)
		}
	}
	summary.Folds = folds

	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return ShowSummary{}, err
	}
	if !ok {
		diagnostics, _, err = stats.ReadGenerationDiagnostics(c.artifactsDir, runID)
		if err != nil {
			return ShowSummary{}, err
		}
	}
	summary.Diagnostics = diagnostics
	return summary, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func runConfig(runID string, inputs []string, cfg config.Config) stats.RunConfig {
	return stats.RunConfig{
		RunID:                  runID,
		Inputs:                 append([]string(nil), inputs...),
		Seed:                   cfg.Seed,
		Workers:                cfg.Workers,
		Generations:            cfg.Search.Generations,
		Offspring:              cfg.Search.Offspring,
		Survivors:              cfg.Search.Survivors,
		BigMutationStart:       cfg.Search.BigMutationStart,
		BigMutationEnd:         cfg.Search.BigMutationEnd,
		BigMutationCoefficient: cfg.Search.BigMutationCoefficient,
		SmallMutationChance:    cfg.Search.SmallMutationChance,
		SmallMutationFactor:    cfg.Search.SmallMutationFactor,
		Selection:              cfg.Search.Selection,
		TournamentSize:         cfg.Search.TournamentSize,
		InnerFolds:             cfg.Inner.Folds,
		InnerRepeats:           cfg.Inner.Repeats,
		OuterFolds:             cfg.Outer.Folds,
		OuterRepeats:           cfg.Outer.Repeats,
		EnsembleFolds:          cfg.Ensemble.Folds,
		EnsembleRepeats:        cfg.Ensemble.Repeats,
		MaxEpochs:              cfg.Trainer.MaxEpochs,
		Patience:               cfg.Trainer.Patience,
		Threshold:              cfg.Threshold,
	}
}

func indexEntry(run model.RunRecord) stats.RunIndexEntry {
	return stats.RunIndexEntry{
		RunID:        run.ID,
		Inputs:       append([]string(nil), run.Inputs...),
		Samples:      run.Samples,
		OuterFolds:   run.OuterFolds,
		OuterRepeats: run.OuterRepeats,
		Seed:         run.Seed,
		MeanMSE:      run.Summary.MeanMSE,
		MeanAccuracy: run.Summary.MeanAccuracy,
		MeanAUC:      run.Summary.MeanAUC,
		CreatedAtUTC: run.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
