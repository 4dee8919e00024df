// Package pins parses pins service flags and launches the service.
package pins

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/pinmap/internal/platform/cmd"
	server "github.com/louisbranch/pinmap/internal/services/pins/app"
	"github.com/louisbranch/pinmap/internal/services/pins/storage/backend"
)

// Config holds pins command configuration.
type Config struct {
	Port           int      `env:"PINMAP_PORT"                 envDefault:"3000"`
	HealthPort     int      `env:"PINMAP_HEALTH_PORT"          envDefault:"3001"`
	AllowedOrigins []string `env:"PINMAP_CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	AccessLog      bool     `env:"PINMAP_ACCESS_LOG"           envDefault:"true"`
	Storage        backend.Config
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	origins := strings.Join(cfg.AllowedOrigins, ",")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The pins HTTP server port")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The gRPC health port (0 disables it)")
	fs.StringVar(&origins, "cors-origins", origins, "Comma-separated CORS origins, * for any")
	fs.BoolVar(&cfg.AccessLog, "access-log", cfg.AccessLog, "Log every HTTP request")
	fs.StringVar(&cfg.Storage.Backend, "storage", cfg.Storage.Backend, "Storage backend: sqlite or postgres")
	fs.StringVar(&cfg.Storage.DBPath, "db-path", cfg.Storage.DBPath, "SQLite database file")
	fs.StringVar(&cfg.Storage.PostgresDSN, "postgres-dsn", cfg.Storage.PostgresDSN, "PostgreSQL connection string")
	fs.IntVar(&cfg.Storage.MaxOpenConns, "db-max-open-conns", cfg.Storage.MaxOpenConns, "Maximum open database connections")
	fs.DurationVar(&cfg.Storage.OperationTimeout, "db-timeout", cfg.Storage.OperationTimeout, "Timeout for one storage operation")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.AllowedOrigins = splitOrigins(origins)
	if cfg.Storage.MaxOpenConns <= 0 {
		return Config{}, fmt.Errorf("db max open conns must be positive, got %d", cfg.Storage.MaxOpenConns)
	}
	if cfg.Storage.OperationTimeout <= 0 {
		return Config{}, fmt.Errorf("db timeout must be positive, got %s", cfg.Storage.OperationTimeout)
	}
	return cfg, nil
}

// ServerConfig converts the command configuration into server settings.
func (c Config) ServerConfig() server.Config {
	healthAddr := ""
	if c.HealthPort > 0 {
		healthAddr = fmt.Sprintf(":%d", c.HealthPort)
	}
	return server.Config{
		HTTPAddr:       fmt.Sprintf(":%d", c.Port),
		HealthAddr:     healthAddr,
		Storage:        c.Storage,
		AllowedOrigins: c.AllowedOrigins,
		AccessLog:      c.AccessLog,
	}
}

// Run starts the pins HTTP service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServicePins, entrypoint.RunOptions{
		ShutdownTimeout: 3 * time.Second,
	}, func(ctx context.Context) error {
		return server.Run(ctx, cfg.ServerConfig())
	})
}

func splitOrigins(value string) []string {
	var origins []string
	for _, origin := range strings.Split(value, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
