// Package backend builds the configured data backend.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"kakeibo/internal/config"
	"kakeibo/internal/storage"
	"kakeibo/internal/storage/memory"
	"kakeibo/internal/storage/postgres"
	"kakeibo/internal/storage/sqlite"
)

// CleanupFunc releases the backend's resources.
type CleanupFunc func() error

// Result contains the store instance and its cleanup function.
type Result struct {
	Store   storage.Store
	Cleanup CleanupFunc
}

// Open creates the store named by cfg.DataBackend.
func Open(ctx context.Context, cfg *config.Config) (*Result, error) {
	switch cfg.DataBackend {
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite backend: %w", err)
		}
		slog.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return &Result{Store: store, Cleanup: store.Close}, nil

	case "postgres":
		store, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres backend: %w", err)
		}
		slog.Info("Initialized PostgreSQL backend")
		return &Result{Store: store, Cleanup: store.Close}, nil

	case "memory":
		store := memory.New()
		slog.Info("Initialized memory backend")
		return &Result{Store: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}
}
