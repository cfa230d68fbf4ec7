package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/ofn/internal/models"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "test.db"
  driver: "sqlite"
  signature_compression: "zstd"
search:
  threshold: 0.3
  timeout: 5s
puzzle:
  lambdas: 11
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SignatureCompression != "zstd" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Search.Threshold != 0.3 || cfg.Search.Timeout != 5*time.Second {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Puzzle.Lambdas != 11 {
		t.Errorf("lambdas = %d, want 11", cfg.Puzzle.Lambdas)
	}
	if !cfg.Puzzle.AutoCrop || cfg.Puzzle.PRatio != 2.0 {
		t.Errorf("unset puzzle keys should keep defaults: %+v", cfg.Puzzle)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/ofn.db"
watch:
  directories: ["./photos"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "ofn.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "photos")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Storage.DatabasePath != "ofn.db" {
		t.Errorf("default database path: got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Storage.Driver != "sqlite3" {
		t.Errorf("default driver: got %s", cfg.Storage.Driver)
	}
	if cfg.Index.WordCount != 100 || cfg.Index.WordLength != 10 {
		t.Errorf("default words: got %d/%d", cfg.Index.WordCount, cfg.Index.WordLength)
	}
	if cfg.Index.Digest != "sha256" {
		t.Errorf("default digest: got %s", cfg.Index.Digest)
	}
	if cfg.Search.Threshold != 0.6 {
		t.Errorf("default threshold: got %v", cfg.Search.Threshold)
	}
	if cfg.Search.MaxCandidates != 1000 || cfg.Search.Timeout != 30*time.Second || cfg.Search.Workers != 4 {
		t.Errorf("default search bounds: got %+v", cfg.Search)
	}
	if cfg.Puzzle.VectorLength() != 544 || !cfg.Puzzle.AutoCrop {
		t.Errorf("default puzzle params: got %+v", cfg.Puzzle)
	}
	if len(cfg.Index.Extensions) != 8 || cfg.Index.Extensions[0] != ".jpg" {
		t.Errorf("index extensions: got %v", cfg.Index.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/photos"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"words longer than signature", func(c *Config) { c.Index.WordCount = 540 }},
		{"unknown digest", func(c *Config) { c.Index.Digest = "md5" }},
		{"unknown compression", func(c *Config) { c.Storage.SignatureCompression = "gzip" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"threshold above one", func(c *Config) { c.Search.Threshold = 1.5 }},
		{"bad puzzle", func(c *Config) { c.Puzzle.Lambdas = 1 }},
		{"no words", func(c *Config) { c.Index.WordLength = 0 }},
		{"no workers", func(c *Config) { c.Search.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Validate() = %v, want a validation error", err)
			}
		})
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := Default()
	cfg.Storage.DatabasePath = "/tmp/ofn.db"
	cfg.Search.Timeout = 2 * time.Second
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Storage.DatabasePath != "/tmp/ofn.db" {
		t.Errorf("loaded database path: got %s", loaded.Storage.DatabasePath)
	}
	if loaded.Search.Timeout != 2*time.Second {
		t.Errorf("loaded timeout: got %v", loaded.Search.Timeout)
	}
}
