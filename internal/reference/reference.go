// Package reference runs a classical RGB unsharp mask from gift and measures how
// far its output is from another image. It is used to contrast the lightness-only
// filter with the conventional per-channel one.
package reference

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/gift"
)

// SigmaForRadius returns the standard deviation of passes chained box blurs of
// the given radius, the Gaussian they approximate.
func SigmaForRadius(radius, passes int) float32 {
	if radius <= 0 || passes <= 0 {
		return 0
	}
	w := float64(2*radius + 1)
	return float32(math.Sqrt(float64(passes) * (w*w - 1) / 12))
}

// UnsharpMask sharpens every RGB channel of src with gift's unsharp mask.
// gift works on normalized channels, so threshold is in [0,1] as for the lightness filter.
func UnsharpMask(src *image.NRGBA, sigma, amount, threshold float32) *image.NRGBA {
	g := gift.New(gift.UnsharpMask(sigma, amount, threshold))
	dst := image.NewNRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

// ChannelStats are absolute differences of one channel.
type ChannelStats struct {
	Mean float64
	Max  uint8
}

// DiffStats compares two images channel by channel.
type DiffStats struct {
	R, G, B, A ChannelStats
	Pixels     int
	Differing  int // pixels where any channel differs
}

// Diff computes per-channel mean and max absolute differences between a and b.
func Diff(a, b *image.NRGBA) (DiffStats, error) {
	if a == nil || b == nil {
		return DiffStats{}, fmt.Errorf("nil image")
	}
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return DiffStats{}, fmt.Errorf("size mismatch: %dx%d vs %dx%d", ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}

	var sums [4]float64
	var maxes [4]uint8
	st := DiffStats{Pixels: ab.Dx() * ab.Dy()}

	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ca := a.NRGBAAt(ab.Min.X+x, ab.Min.Y+y)
			cb := b.NRGBAAt(bb.Min.X+x, bb.Min.Y+y)

			d := [4]uint8{
				absDiff(ca.R, cb.R),
				absDiff(ca.G, cb.G),
				absDiff(ca.B, cb.B),
				absDiff(ca.A, cb.A),
			}
			differs := false
			for i, v := range d {
				sums[i] += float64(v)
				maxes[i] = max(maxes[i], v)
				if v != 0 {
					differs = true
				}
			}
			if differs {
				st.Differing++
			}
		}
	}

	if st.Pixels > 0 {
		n := float64(st.Pixels)
		st.R = ChannelStats{Mean: sums[0] / n, Max: maxes[0]}
		st.G = ChannelStats{Mean: sums[1] / n, Max: maxes[1]}
		st.B = ChannelStats{Mean: sums[2] / n, Max: maxes[2]}
		st.A = ChannelStats{Mean: sums[3] / n, Max: maxes[3]}
	}

	return st, nil
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
