package puzzle

import (
	"github.com/hyperjump/ofn/internal/models"
)

// Params controls signature extraction.
type Params struct {
	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`
	// Lambdas is the grid size; a signature has one element per neighbour pair of the grid.
	Lambdas     int     `yaml:"lambdas"`
	PRatio      float64 `yaml:"p_ratio"`
	NoiseCutoff float64 `yaml:"noise_cutoff"`
	// ContrastBarrier is the share of total contrast that border lines may hold and still be cropped.
	ContrastBarrier  float64 `yaml:"contrast_barrier"`
	MaxCroppingRatio float64 `yaml:"max_cropping_ratio"`
	AutoCrop         bool    `yaml:"autocrop"`
}

// DefaultParams returns libpuzzle's defaults (9 lambdas, 544-element signatures).
func DefaultParams() Params {
	return Params{
		MaxWidth:         3000,
		MaxHeight:        3000,
		Lambdas:          9,
		PRatio:           2.0,
		NoiseCutoff:      2.0,
		ContrastBarrier:  0.05,
		MaxCroppingRatio: 0.25,
		AutoCrop:         true,
	}
}

// Validate checks that every parameter is usable.
func (p Params) Validate() error {
	switch {
	case p.MaxWidth <= 0 || p.MaxHeight <= 0:
		return models.Errorf(models.KindValidation, "puzzle params", "max dimensions must be positive, got %dx%d", p.MaxWidth, p.MaxHeight)
	case p.Lambdas < 2 || p.Lambdas > 64:
		return models.Errorf(models.KindValidation, "puzzle params", "lambdas must be in [2, 64], got %d", p.Lambdas)
	case p.PRatio < 1:
		return models.Errorf(models.KindValidation, "puzzle params", "p ratio must be >= 1, got %v", p.PRatio)
	case p.NoiseCutoff < 0:
		return models.Errorf(models.KindValidation, "puzzle params", "noise cutoff must not be negative, got %v", p.NoiseCutoff)
	case p.ContrastBarrier < 0 || p.ContrastBarrier >= 1:
		return models.Errorf(models.KindValidation, "puzzle params", "contrast barrier must be in [0, 1), got %v", p.ContrastBarrier)
	case p.MaxCroppingRatio < 0 || p.MaxCroppingRatio >= 0.5:
		return models.Errorf(models.KindValidation, "puzzle params", "max cropping ratio must be in [0, 0.5), got %v", p.MaxCroppingRatio)
	}
	if p.MinDimension() > p.MaxWidth || p.MinDimension() > p.MaxHeight {
		return models.Errorf(models.KindValidation, "puzzle params", "max dimensions smaller than the %d pixel minimum", p.MinDimension())
	}
	return nil
}

// VectorLength is the number of elements in a signature: every ordered pair of
// 8-neighbours on a Lambdas×Lambdas grid.
func (p Params) VectorLength() int {
	l := p.Lambdas
	return 4*l*(l-1) + 4*(l-1)*(l-1)
}

// MinDimension is the smallest width or height an image may have after cropping.
func (p Params) MinDimension() int {
	return 2 * (p.Lambdas + 1)
}
