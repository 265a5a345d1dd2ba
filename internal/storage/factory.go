package storage

import (
	"context"
	"errors"
	"fmt"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

var (
	ErrUnsupportedBackend = errors.New("unsupported store backend")
	ErrSQLitePathRequired = errors.New("sqlite backend requires a database path")
	ErrSQLiteUnavailable  = errors.New("sqlite backend unavailable in this build; rebuild with -tags sqlite")
)

// ValidateBackend checks a configured backend name and database path without
// opening anything. The empty name selects the memory backend.
func ValidateBackend(kind, path string) error {
	switch kind {
	case "", BackendMemory:
		return nil
	case BackendSQLite:
		if path == "" {
			return ErrSQLitePathRequired
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedBackend, kind)
	}
}

// Open returns an initialized store for kind, ready to record runs.
func Open(ctx context.Context, kind, path string) (Store, error) {
	if err := ValidateBackend(kind, path); err != nil {
		return nil, err
	}
	var (
		store Store
		err   error
	)
	if kind == BackendSQLite {
		store, err = newSQLiteStore(path)
		if err != nil {
			return nil, err
		}
	} else {
		store = NewMemoryStore()
	}
	if err := store.Init(ctx); err != nil {
		_ = Close(store)
		return nil, fmt.Errorf("init %s store: %w", backendName(kind), err)
	}
	return store, nil
}

// Close releases the resources of stores that hold any.
func Close(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}

func backendName(kind string) string {
	if kind == "" {
		return BackendMemory
	}
	return kind
}
