// Package sharpen applies the threshold-gated unsharp rule to a lightness field.
package sharpen

import "math"

// Stats summarises one sharpening pass.
type Stats struct {
	Changed int     // samples whose |diff| exceeded the threshold
	Min     float64 // smallest resulting lightness
	Max     float64 // largest resulting lightness
}

// Underflow reports whether any sample was driven below zero.
func (s Stats) Underflow() bool {
	return s.Min < 0
}

// Lightness sharpens l in place against its blurred counterpart.
// For every sample whose difference to the blur exceeds threshold, the difference
// scaled by amount is added back, capped at 1.0. There is no lower cap.
func Lightness(l, blurred []float64, amount, threshold float64) {
	for i := range l {
		l[i], _ = sample(l[i], blurred[i], amount, threshold)
	}
}

// sample applies the rule to one lightness value and reports whether it fired.
func sample(l, blurred, amount, threshold float64) (float64, bool) {
	diff := l - blurred
	if math.Abs(diff) <= threshold {
		return l, false
	}
	return math.Min(l+diff*amount, 1.0), true
}

// LightnessWithStats is Lightness plus bookkeeping of what changed.
func LightnessWithStats(l, blurred []float64, amount, threshold float64) Stats {
	st := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	if len(l) == 0 {
		return Stats{}
	}

	for i := range l {
		var changed bool
		if l[i], changed = sample(l[i], blurred[i], amount, threshold); changed {
			st.Changed++
		}
		st.Min = math.Min(st.Min, l[i])
		st.Max = math.Max(st.Max, l[i])
	}

	return st
}
