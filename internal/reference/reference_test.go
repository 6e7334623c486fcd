package reference

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/MeKo-Tech/unsharpmask/internal/pattern"
	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
)

func TestSigmaForRadius(t *testing.T) {
	tests := []struct {
		radius, passes int
		want           float64
	}{
		{0, 3, 0},
		{1, 0, 0},
		{1, 1, math.Sqrt(8.0 / 12)},
		{1, 3, math.Sqrt(2)},
		{2, 3, math.Sqrt(6)},
	}

	for _, tt := range tests {
		got := float64(SigmaForRadius(tt.radius, tt.passes))
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("SigmaForRadius(%d,%d) = %v, want %v", tt.radius, tt.passes, got, tt.want)
		}
	}
}

func TestDiffIdenticalImages(t *testing.T) {
	img := pattern.Noise(16, 16, 5, 1)

	st, err := Diff(img, img)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if st.Differing != 0 || st.R.Max != 0 || st.A.Mean != 0 {
		t.Fatalf("identical images should not differ: %+v", st)
	}
	if st.Pixels != 256 {
		t.Fatalf("pixels = %d, want 256", st.Pixels)
	}
}

func TestDiffCountsChannels(t *testing.T) {
	a := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	b := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	a.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	b.SetNRGBA(0, 0, color.NRGBA{R: 14, G: 10, B: 0, A: 255})

	st, err := Diff(a, b)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if st.Differing != 1 {
		t.Fatalf("differing = %d, want 1", st.Differing)
	}
	if st.R.Max != 4 || st.R.Mean != 2 {
		t.Fatalf("red stats = %+v", st.R)
	}
	if st.B.Max != 10 || st.G.Max != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestDiffSizeMismatch(t *testing.T) {
	a := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	b := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	if _, err := Diff(a, b); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := Diff(nil, b); err == nil {
		t.Fatal("expected nil image error")
	}
}

func TestUnsharpMaskComparableOnGrayEdge(t *testing.T) {
	// On a gray step edge both filters brighten the bright side and darken the dark side.
	src := pattern.StepEdge(32, 8, 60, 180, 255)

	ref := UnsharpMask(src, SigmaForRadius(2, unsharp.Blurs), 1, 0)
	if ref.Bounds() != src.Bounds() {
		t.Fatalf("bounds changed: %v", ref.Bounds())
	}

	own := pattern.StepEdge(32, 8, 60, 180, 255)
	if err := unsharp.ApplyNRGBA(own, unsharp.Params{Amount: 1, Radius: 2}); err != nil {
		t.Fatalf("ApplyNRGBA: %v", err)
	}

	for _, img := range []*image.NRGBA{ref, own} {
		if img.NRGBAAt(15, 4).R >= 60 {
			t.Fatalf("dark side not darkened: %+v", img.NRGBAAt(15, 4))
		}
		if img.NRGBAAt(16, 4).R <= 180 {
			t.Fatalf("bright side not brightened: %+v", img.NRGBAAt(16, 4))
		}
	}

	if _, err := Diff(ref, own); err != nil {
		t.Fatalf("Diff: %v", err)
	}
}
