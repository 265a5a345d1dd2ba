//go:build !sqlite

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteWithoutBuildTag(t *testing.T) {
	_, err := Open(context.Background(), BackendSQLite, filepath.Join(t.TempDir(), "runs.db"))
	if !errors.Is(err, ErrSQLiteUnavailable) {
		t.Fatalf("expected ErrSQLiteUnavailable, got %v", err)
	}
}
