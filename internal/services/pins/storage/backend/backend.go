// Package backend selects and opens the configured pin store engine.
package backend

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	apperrors "github.com/louisbranch/pinmap/internal/platform/errors"
	"github.com/louisbranch/pinmap/internal/services/pins/storage"
	pinpostgres "github.com/louisbranch/pinmap/internal/services/pins/storage/postgres"
	pinsqlite "github.com/louisbranch/pinmap/internal/services/pins/storage/sqlite"
)

// Supported engine names.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Config selects a storage engine and its pool limits.
type Config struct {
	Backend          string        `env:"PINMAP_STORAGE_BACKEND" envDefault:"sqlite"`
	DBPath           string        `env:"PINMAP_DB_PATH" envDefault:"tourist.db"`
	PostgresDSN      string        `env:"PINMAP_POSTGRES_DSN"`
	MaxOpenConns     int           `env:"PINMAP_DB_MAX_OPEN_CONNS" envDefault:"4"`
	OperationTimeout time.Duration `env:"PINMAP_DB_OPERATION_TIMEOUT" envDefault:"5s"`
}

// Store is a pin store that owns resources released by Close.
type Store interface {
	storage.PinStore
	io.Closer
}

// Open opens the engine named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch name := strings.ToLower(strings.TrimSpace(cfg.Backend)); name {
	case "", SQLite:
		store, err := pinsqlite.Open(
			cfg.DBPath,
			pinsqlite.WithMaxOpenConns(cfg.MaxOpenConns),
			pinsqlite.WithOperationTimeout(cfg.OperationTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("open sqlite pin store: %w", err)
		}
		return store, nil
	case Postgres:
		store, err := pinpostgres.Open(
			ctx,
			cfg.PostgresDSN,
			pinpostgres.WithMaxOpenConns(cfg.MaxOpenConns),
			pinpostgres.WithOperationTimeout(cfg.OperationTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres pin store: %w", err)
		}
		return store, nil
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("unknown storage backend %q", cfg.Backend),
			map[string]string{"Field": "storage backend"})
	}
}
