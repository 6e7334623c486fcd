// Package unsharp sharpens RGBX pixel buffers with a lightness-only unsharp mask.
//
// The pipeline converts the buffer to HSL, blurs the lightness field with three
// chained box blurs, amplifies the difference between lightness and its blur where
// it exceeds a threshold, and writes RGB back. The fourth sample of every pixel
// (usually alpha) is never read or written.
package unsharp

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/unsharpmask/internal/boxblur"
	"github.com/MeKo-Tech/unsharpmask/internal/colorspace"
	"github.com/MeKo-Tech/unsharpmask/internal/sharpen"
)

// Blurs is the number of chained box blurs approximating the Gaussian.
const Blurs = 3

var (
	ErrInvalidBufferShape = errors.New("invalid buffer shape")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrInvalidRadius      = errors.New("invalid radius")
	ErrInvalidParameter   = errors.New("invalid parameter")
)

// Params are the filter knobs.
type Params struct {
	Amount    float64 // strength, >= 0; 0 leaves the image unchanged
	Radius    int     // box radius in pixels, >= 0
	Threshold float64 // minimum lightness delta in [0,1] that triggers sharpening
}

// DefaultParams returns moderate sharpening suitable for downscaled photos.
func DefaultParams() Params {
	return Params{
		Amount:    0.8,
		Radius:    2,
		Threshold: 0.01,
	}
}

// Validate checks the scalar parameters.
func (p Params) Validate() error {
	if p.Radius < 0 {
		return fmt.Errorf("%w: radius %d must be non-negative", ErrInvalidRadius, p.Radius)
	}
	if !(p.Amount >= 0) {
		return fmt.Errorf("%w: amount %v must be non-negative", ErrInvalidParameter, p.Amount)
	}
	if !(p.Threshold >= 0) {
		return fmt.Errorf("%w: threshold %v must be non-negative", ErrInvalidParameter, p.Threshold)
	}
	return nil
}

// Apply sharpens pix in place. pix holds width*height pixels of 4 samples each
// (R, G, B and an untouched fourth sample). All arguments are validated before
// the buffer is touched; on error pix is unchanged.
func Apply(pix []uint8, width, height int, amount float64, radius int, threshold float64) error {
	_, err := run(pix, width, height, Params{Amount: amount, Radius: radius, Threshold: threshold})
	return err
}

// ApplyParams is Apply with a Params value.
func ApplyParams(pix []uint8, width, height int, p Params) error {
	_, err := run(pix, width, height, p)
	return err
}

// ApplyWithStats is ApplyParams that also reports what the sharpening pass did.
func ApplyWithStats(pix []uint8, width, height int, p Params) (sharpen.Stats, error) {
	return run(pix, width, height, p)
}

func checkShape(pix []uint8, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if width > math.MaxInt/colorspace.Channels/height {
		return fmt.Errorf("%w: %dx%d overflows", ErrInvalidDimensions, width, height)
	}
	if want := width * height * colorspace.Channels; len(pix) != want {
		return fmt.Errorf("%w: got %d samples, want %d for %dx%d", ErrInvalidBufferShape, len(pix), want, width, height)
	}
	return nil
}

func run(pix []uint8, width, height int, p Params) (sharpen.Stats, error) {
	if err := checkShape(pix, width, height); err != nil {
		return sharpen.Stats{}, err
	}
	if err := p.Validate(); err != nil {
		return sharpen.Stats{}, err
	}

	fields := colorspace.ToHSL(pix, width, height)
	blurred := boxblur.Gaussian(fields.L, width, height, p.Radius, Blurs)
	st := sharpen.LightnessWithStats(fields.L, blurred, p.Amount, p.Threshold)
	colorspace.FromHSL(fields, pix, width, height)

	return st, nil
}
