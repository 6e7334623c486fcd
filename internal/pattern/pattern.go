// Package pattern generates synthetic images for exercising the sharpening filter.
package pattern

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/aquilax/go-perlin"
)

// Kind names a synthetic pattern.
type Kind string

const (
	KindStep    Kind = "step"
	KindNoise   Kind = "noise"
	KindChecker Kind = "checker"
)

// Kinds lists the supported patterns in display order.
var Kinds = []Kind{KindStep, KindNoise, KindChecker}

// ParseKind resolves a pattern name (case-insensitive).
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown pattern %q", s)
}

// Generate renders a pattern of the given kind with sensible defaults.
func Generate(kind Kind, width, height int, seed int64) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pattern size must be positive, got %dx%d", width, height)
	}

	switch kind {
	case KindStep:
		return StepEdge(width, height, 51, 204, 255), nil
	case KindNoise:
		return Noise(width, height, 24.0, seed), nil
	case KindChecker:
		cell := max(1, min(width, height)/8)
		return Checker(width, height, cell,
			color.NRGBA{R: 60, G: 80, B: 140, A: 255},
			color.NRGBA{R: 230, G: 200, B: 90, A: 128},
		), nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", kind)
	}
}

// StepEdge returns a gray image whose left half is left and right half is right.
func StepEdge(width, height int, left, right, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := left
			if x >= width/2 {
				v = right
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: alpha})
		}
	}

	return img
}

// Noise returns colour Perlin noise with an independent noise field in alpha.
// scale controls the feature size (larger = smoother). Same seed, same image.
func Noise(width, height int, scale float64, seed int64) *image.NRGBA {
	// One generator per channel: alpha, beta, octaves as in the mask noise.
	gens := [4]*perlin.Perlin{
		perlin.NewPerlin(2.0, 2.0, 3, seed),
		perlin.NewPerlin(2.0, 2.0, 3, seed+1),
		perlin.NewPerlin(2.0, 2.0, 3, seed+2),
		perlin.NewPerlin(2.0, 2.0, 3, seed+3),
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			nx := float64(x) / scale
			ny := float64(y) / scale

			var c [4]uint8
			for i, p := range gens {
				// Noise2D is roughly in [-1, 1].
				normalized := (p.Noise2D(nx, ny) + 1.0) / 2.0
				c[i] = uint8(math.Max(0, math.Min(255, normalized*255)))
			}
			img.SetNRGBA(x, y, color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]})
		}
	}

	return img
}

// Checker returns a checkerboard of cell x cell squares alternating a and b.
func Checker(width, height, cell int, a, b color.NRGBA) *image.NRGBA {
	if cell <= 0 {
		cell = 1
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			img.SetNRGBA(x, y, c)
		}
	}

	return img
}
