package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type envTestConfig struct {
	Port int `env:"PINMAP_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("PINMAP_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDotEnvMissingDefaultFileIsIgnored(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvFileVar, "")

	loaded, err := LoadDotEnv()
	if err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if loaded {
		t.Fatal("expected no file to be loaded")
	}
}

func TestLoadDotEnvMissingExplicitFileFails(t *testing.T) {
	t.Setenv(EnvFileVar, filepath.Join(t.TempDir(), "missing.env"))

	if _, err := LoadDotEnv(); err == nil {
		t.Fatal("expected error for missing explicit env file")
	}
}

func TestLoadDotEnvDoesNotOverrideExistingVars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.env")
	content := "PINMAP_TEST_PORT=456\nPINMAP_TEST_DOTENV_ONLY=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvFileVar, path)
	t.Setenv("PINMAP_TEST_PORT", "789")
	t.Setenv("PINMAP_TEST_DOTENV_ONLY", "")
	os.Unsetenv("PINMAP_TEST_DOTENV_ONLY")

	loaded, err := LoadDotEnv()
	if err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if !loaded {
		t.Fatal("expected env file to be loaded")
	}

	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 789 {
		t.Fatalf("port = %d, want 789 from the process environment", cfg.Port)
	}
	if got := os.Getenv("PINMAP_TEST_DOTENV_ONLY"); got != "from-file" {
		t.Fatalf("PINMAP_TEST_DOTENV_ONLY = %q, want from-file", got)
	}
}
