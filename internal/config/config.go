// Package config provides configuration loading and structs for the ofn tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/ofn/internal/blob"
	"github.com/hyperjump/ofn/internal/fileid"
	"github.com/hyperjump/ofn/internal/models"
	"github.com/hyperjump/ofn/internal/puzzle"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Storage StorageConfig `yaml:"storage"`
	Puzzle  puzzle.Params `yaml:"puzzle"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
	Watch   WatchConfig   `yaml:"watch"`
}

// StorageConfig holds the signature database settings.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string `yaml:"driver"`
	// SignatureCompression wraps stored signatures: "none", "lz4", or "zstd".
	SignatureCompression string `yaml:"signature_compression"`
}

// IndexConfig holds the word and digest settings used when committing images.
// Word settings are fixed for the life of a database.
type IndexConfig struct {
	WordCount  int      `yaml:"word_count"`
	WordLength int      `yaml:"word_length"`
	Digest     string   `yaml:"digest"`
	Extensions []string `yaml:"extensions"`
}

// SearchConfig holds similarity search settings.
type SearchConfig struct {
	Threshold     float64       `yaml:"threshold"`
	MaxCandidates int           `yaml:"max_candidates"`
	Timeout       time.Duration `yaml:"timeout"`
	Workers       int           `yaml:"workers"`
	Limit         int           `yaml:"limit"`
	CacheSize     int           `yaml:"cache_size"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Keys absent from the file keep the puzzle defaults, including autocrop.
	cfg := Config{Puzzle: puzzle.DefaultParams()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if err := c.Puzzle.Validate(); err != nil {
		return err
	}
	if c.Index.WordCount < 1 || c.Index.WordLength < 1 {
		return models.Errorf(models.KindValidation, "config", "index word_count and word_length must be positive")
	}
	if need := c.Index.WordCount + c.Index.WordLength - 1; need > c.Puzzle.VectorLength() {
		return models.Errorf(models.KindValidation, "config", "words need %d signature elements, puzzle produces %d", need, c.Puzzle.VectorLength())
	}
	if _, err := fileid.New(c.Index.Digest); err != nil {
		return err
	}
	if _, err := blob.ParseType(c.Storage.SignatureCompression); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "sqlite3", "sqlite":
	default:
		return models.Errorf(models.KindValidation, "config", "unknown storage driver %q", c.Storage.Driver)
	}
	if c.Search.Threshold <= 0 || c.Search.Threshold > 1 {
		return models.Errorf(models.KindValidation, "config", "search threshold %v outside (0, 1]", c.Search.Threshold)
	}
	if c.Search.Workers < 1 {
		return models.Errorf(models.KindValidation, "config", "search workers must be positive")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
