package storage

import (
	"context"

	"resectnet/internal/model"
)

// Store persists experiment runs together with their per-fold results and
// search diagnostics.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveFoldResults(ctx context.Context, runID string, folds []model.FoldResult) error
	GetFoldResults(ctx context.Context, runID string) ([]model.FoldResult, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
}
