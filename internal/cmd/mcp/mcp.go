// Package mcp parses MCP command flags and serves pin tools over stdio or HTTP.
package mcp

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	entrypoint "github.com/louisbranch/pinmap/internal/platform/cmd"
	"github.com/louisbranch/pinmap/internal/services/mcp/service"
	"github.com/louisbranch/pinmap/internal/services/pins/storage/backend"
)

// Config holds MCP command configuration.
type Config struct {
	HTTPAddr  string `env:"PINMAP_MCP_HTTP_ADDR" envDefault:"localhost:3002"`
	Transport string `env:"PINMAP_MCP_TRANSPORT" envDefault:"stdio"`
	Storage   backend.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.Storage.Backend, "storage", cfg.Storage.Backend, "Storage backend: sqlite or postgres")
	fs.StringVar(&cfg.Storage.DBPath, "db-path", cfg.Storage.DBPath, "SQLite database file")
	fs.StringVar(&cfg.Storage.PostgresDSN, "postgres-dsn", cfg.Storage.PostgresDSN, "PostgreSQL connection string")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	switch service.TransportKind(strings.TrimSpace(cfg.Transport)) {
	case service.TransportStdio, service.TransportHTTP:
	default:
		return Config{}, fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
	return cfg, nil
}

// Run opens the pin store and serves MCP until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		store, err := backend.Open(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close pin store: %v", err)
			}
		}()
		return service.Run(ctx, service.Config{
			Transport: service.TransportKind(strings.TrimSpace(cfg.Transport)),
			HTTPAddr:  cfg.HTTPAddr,
		}, store)
	})
}
