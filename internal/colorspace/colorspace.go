// Package colorspace converts interleaved RGBX pixel buffers to and from HSL fields.
package colorspace

import "math"

// Channels is the number of samples per pixel in a buffer: R, G, B and one untouched sample.
const Channels = 4

const (
	achromaticEpsilon = 1e-8

	div255 = 1.0 / 255
	div3   = 1.0 / 3
	div6   = 1.0 / 6
	div23  = 2.0 / 3
)

// Fields holds the HSL decomposition of a buffer.
// HS stores interleaved (hue, saturation) pairs, L one lightness value per pixel.
// Both are in scan order (row-major, left to right, top to bottom).
type Fields struct {
	HS []float32
	L  []float64
}

// NewFields allocates fields for n pixels.
func NewFields(n int) Fields {
	return Fields{
		HS: make([]float32, n*2),
		L:  make([]float64, n),
	}
}

// Len returns the number of pixels covered by the fields.
func (f Fields) Len() int {
	return len(f.L)
}

// RGBToHSL converts RGB (0–255) to HSL with h, s and l in [0, 1].
func RGBToHSL(r, g, b uint8) (h, s, l float64) {
	rf := float64(r) * div255
	gf := float64(g) * div255
	bf := float64(b) * div255

	maxv := max(rf, gf, bf)
	minv := min(rf, gf, bf)
	l = (maxv + minv) / 2

	if maxv == minv {
		return 0, 0, l
	}

	d := maxv - minv
	if l > 0.5 {
		s = d / (2 - maxv - minv)
	} else {
		s = d / (maxv + minv)
	}

	switch maxv {
	case rf:
		h = (gf - bf) / d
		if gf < bf {
			h += 6
		}
	case gf:
		h = (bf-rf)/d + 2
	case bf:
		h = (rf-gf)/d + 4
	}
	h /= 6

	return h, s, l
}

// HSLToRGB converts HSL back to RGB (0–255).
// Lightness outside [0, 1] is not rejected; channels that round outside the byte
// range saturate at 0 or 255.
func HSLToRGB(h, s, l float64) (r, g, b uint8) {
	if s < achromaticEpsilon {
		v := clampU8(l * 255)
		return v, v, v
	}

	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q

	r = clampU8(hueToRGB(p, q, h+div3) * 255)
	g = clampU8(hueToRGB(p, q, h) * 255)
	b = clampU8(hueToRGB(p, q, h-div3) * 255)
	return r, g, b
}

// hueToRGB folds t into [0, 1] and evaluates the piecewise hue ramp.
func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < div6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < div23:
		return p + (q-p)*(div23-t)*6
	default:
		return p
	}
}

// clampU8 rounds v to the nearest integer and saturates it to [0, 255].
func clampU8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
