// Package storage opens the configured run history store and records
// pipeline runs into it.
package storage

import (
	"fmt"

	"github.com/KaranKendre11/VibeOPS/internal/config"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/storage/memory"
	"github.com/KaranKendre11/VibeOPS/internal/storage/sqldb"
)

// Open returns the store selected by cfg.Type. "none" yields a nil store,
// which disables run history.
func Open(cfg config.StorageConfig) (ports.RunStore, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.New(), nil
	case "sqlite", "postgres":
		store, err := sqldb.New(sqldb.Config{Driver: cfg.Type, DSN: cfg.DSN})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Type, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
