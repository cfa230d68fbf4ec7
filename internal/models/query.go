package models

import (
	"fmt"
	"time"
)

const (
	// DefaultThreshold is libpuzzle's "same picture" distance.
	DefaultThreshold = 0.6
	// DefaultMaxCandidates bounds how many candidates are re-ranked per search.
	DefaultMaxCandidates = 1000
	// DefaultSearchTimeout bounds the re-rank phase of a search.
	DefaultSearchTimeout = 30 * time.Second
)

// SearchOptions tunes a single similarity search.
type SearchOptions struct {
	Threshold     float64       `json:"threshold,omitempty" yaml:"threshold"`           // keep matches with distance strictly below this
	MaxCandidates int           `json:"max_candidates,omitempty" yaml:"max_candidates"` // cap on candidates fetched for re-ranking
	Timeout       time.Duration `json:"timeout,omitempty" yaml:"timeout"`               // re-rank deadline; 0 uses the default
	Limit         int           `json:"limit,omitempty" yaml:"limit"`                   // max matches returned; 0 returns all
}

// Validate checks the options and fills defaults for zero values.
// Returns a validation error if the threshold is outside (0, 1] or a bound is negative.
func (o *SearchOptions) Validate() error {
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return NewError(KindValidation, "search options", fmt.Errorf("threshold %v outside (0, 1]", o.Threshold))
	}
	if o.MaxCandidates < 0 {
		return NewError(KindValidation, "search options", fmt.Errorf("max candidates must not be negative"))
	}
	if o.MaxCandidates == 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.Timeout < 0 {
		return NewError(KindValidation, "search options", fmt.Errorf("timeout must not be negative"))
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultSearchTimeout
	}
	if o.Limit < 0 {
		o.Limit = 0
	}
	return nil
}
