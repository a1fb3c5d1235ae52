package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrUnavailable reports a backend this binary was built without.
var ErrUnavailable = errors.New("store backend unavailable")

// Open builds the run store for backend ("memory" or "sqlite") and
// initialises it, so callers can save runs right away.
func Open(ctx context.Context, backend, path string, logger *log.Logger) (Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	var (
		store Store
		err   error
	)
	switch backend {
	case "", "memory":
		store = NewMemoryStore()
		logger.Println("run store: memory, runs are lost on exit")
	case "sqlite":
		if store, err = openSQLite(path); err != nil {
			return nil, err
		}
		logger.Printf("run store: sqlite at %s", path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}

	if err := store.Init(ctx); err != nil {
		_ = Close(store)
		return nil, fmt.Errorf("init %s store: %w", backend, err)
	}
	return store, nil
}

// Close releases the store's resources if it holds any.
func Close(store Store) error {
	if closer, ok := store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
