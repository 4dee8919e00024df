package pins

import (
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/louisbranch/pinmap/internal/platform/config"
)

// isolateEnv runs the test from an empty directory so no stray .env file is loaded.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvFileVar, "")
}

func TestParseConfigDefaults(t *testing.T) {
	isolateEnv(t)
	for _, key := range []string{
		"PINMAP_PORT", "PINMAP_HEALTH_PORT", "PINMAP_CORS_ALLOWED_ORIGINS", "PINMAP_STORAGE_BACKEND",
		"PINMAP_DB_PATH", "PINMAP_DB_MAX_OPEN_CONNS", "PINMAP_DB_OPERATION_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	fs := flag.NewFlagSet("pins", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("port = %d, want 3000", cfg.Port)
	}
	if cfg.HealthPort != 3001 {
		t.Fatalf("health port = %d, want 3001", cfg.HealthPort)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Fatalf("backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Storage.DBPath != "tourist.db" {
		t.Fatalf("db path = %q, want tourist.db", cfg.Storage.DBPath)
	}
	if cfg.Storage.MaxOpenConns != 4 {
		t.Fatalf("max open conns = %d, want 4", cfg.Storage.MaxOpenConns)
	}
	if cfg.Storage.OperationTimeout != 5*time.Second {
		t.Fatalf("operation timeout = %s, want 5s", cfg.Storage.OperationTimeout)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
		t.Fatalf("origins = %v, want [*]", cfg.AllowedOrigins)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PINMAP_PORT", "4000")
	t.Setenv("PINMAP_DB_PATH", "env.db")
	t.Setenv("PINMAP_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	fs := flag.NewFlagSet("pins", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "5000", "-health-port", "0", "-db-timeout", "2s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("port = %d, want 5000", cfg.Port)
	}
	if cfg.Storage.DBPath != "env.db" {
		t.Fatalf("db path = %q, want env.db", cfg.Storage.DBPath)
	}
	if cfg.Storage.OperationTimeout != 2*time.Second {
		t.Fatalf("timeout = %s, want 2s", cfg.Storage.OperationTimeout)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("origins = %v, want %v", cfg.AllowedOrigins, want)
	}

	serverCfg := cfg.ServerConfig()
	if serverCfg.HTTPAddr != ":5000" {
		t.Fatalf("http addr = %q, want :5000", serverCfg.HTTPAddr)
	}
	if serverCfg.HealthAddr != "" {
		t.Fatalf("health addr = %q, want disabled", serverCfg.HealthAddr)
	}
}

func TestParseConfigRejectsNonPositivePool(t *testing.T) {
	isolateEnv(t)

	fs := flag.NewFlagSet("pins", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-db-max-open-conns", "0"}); err == nil {
		t.Fatal("expected pool size error")
	}
}

func TestParseConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.env")
	if err := os.WriteFile(path, []byte("PINMAP_DB_PATH=from-file.db\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(config.EnvFileVar, path)
	// The file only fills variables that are unset; restore on cleanup.
	t.Setenv("PINMAP_DB_PATH", "")
	if err := os.Unsetenv("PINMAP_DB_PATH"); err != nil {
		t.Fatalf("unset env: %v", err)
	}

	fs := flag.NewFlagSet("pins", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Storage.DBPath != "from-file.db" {
		t.Fatalf("db path = %q, want from-file.db", cfg.Storage.DBPath)
	}
}
