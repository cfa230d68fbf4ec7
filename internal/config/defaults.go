package config

import (
	"time"

	"github.com/hyperjump/ofn/internal/puzzle"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "ofn.db"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite3"
	}
	if cfg.Storage.SignatureCompression == "" {
		cfg.Storage.SignatureCompression = "none"
	}

	def := puzzle.DefaultParams()
	if cfg.Puzzle == (puzzle.Params{}) {
		cfg.Puzzle = def
	}
	if cfg.Puzzle.MaxWidth == 0 {
		cfg.Puzzle.MaxWidth = def.MaxWidth
	}
	if cfg.Puzzle.MaxHeight == 0 {
		cfg.Puzzle.MaxHeight = def.MaxHeight
	}
	if cfg.Puzzle.Lambdas == 0 {
		cfg.Puzzle.Lambdas = def.Lambdas
	}
	if cfg.Puzzle.PRatio == 0 {
		cfg.Puzzle.PRatio = def.PRatio
	}
	if cfg.Puzzle.NoiseCutoff == 0 {
		cfg.Puzzle.NoiseCutoff = def.NoiseCutoff
	}
	if cfg.Puzzle.ContrastBarrier == 0 {
		cfg.Puzzle.ContrastBarrier = def.ContrastBarrier
	}
	if cfg.Puzzle.MaxCroppingRatio == 0 {
		cfg.Puzzle.MaxCroppingRatio = def.MaxCroppingRatio
	}

	if cfg.Index.WordCount == 0 {
		cfg.Index.WordCount = 100
	}
	if cfg.Index.WordLength == 0 {
		cfg.Index.WordLength = 10
	}
	if cfg.Index.Digest == "" {
		cfg.Index.Digest = "sha256"
	}
	if cfg.Index.Extensions == nil {
		cfg.Index.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}
	}

	if cfg.Search.Threshold == 0 {
		cfg.Search.Threshold = puzzle.SimilarityThreshold
	}
	if cfg.Search.MaxCandidates == 0 {
		cfg.Search.MaxCandidates = 1000
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 30 * time.Second
	}
	if cfg.Search.Workers == 0 {
		cfg.Search.Workers = 4
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = 4096
	}

	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
