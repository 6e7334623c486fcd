// Package boxblur implements a separable moving-average blur over scalar fields.
//
// Each axis pass scans rows horizontally and writes its output transposed, so the
// second pass of a full blur runs the same row scan over what were the columns.
// Samples outside a row are replaced by the nearest edge sample.
package boxblur

import "fmt"

// AxisPass blurs every row of src (width x height, row-major) with a box of
// 2*radius+1 samples and writes the result transposed into dst (height x width),
// so that row y, column x of src lands at row x, column y of dst.
// dst and src must not overlap.
func AxisPass(dst, src []float64, width, height, radius int) {
	if radius < 0 {
		panic(fmt.Sprintf("boxblur: negative radius %d", radius))
	}

	wm := width - 1
	div := 1 / float64(2*radius+1)

	for y := 0; y < height; y++ {
		row := src[y*width : (y+1)*width]

		var sum float64
		for i := -radius; i <= radius; i++ {
			sum += row[min(wm, max(i, 0))]
		}

		for x := 0; x < width; x++ {
			dst[x*height+y] = sum * div
			sum += row[min(x+radius+1, wm)] - row[max(x-radius, 0)]
		}
	}
}

// Blur returns a 2-D box blur of src. src is not modified.
func Blur(src []float64, width, height, radius int) []float64 {
	tmp := make([]float64, len(src))
	dst := make([]float64, len(src))
	blurInto(dst, tmp, src, width, height, radius)
	return dst
}

// Gaussian approximates a Gaussian blur by chaining passes full box blurs,
// each consuming the previous one's output. src is not modified.
func Gaussian(src []float64, width, height, radius, passes int) []float64 {
	cur := make([]float64, len(src))
	copy(cur, src)
	if passes <= 0 {
		return cur
	}

	tmp := make([]float64, len(src))
	next := make([]float64, len(src))
	for i := 0; i < passes; i++ {
		blurInto(next, tmp, cur, width, height, radius)
		cur, next = next, cur
	}

	return cur
}

// blurInto runs both axis passes: src -> tmp (transposed) -> dst (original orientation).
func blurInto(dst, tmp, src []float64, width, height, radius int) {
	AxisPass(tmp, src, width, height, radius)
	AxisPass(dst, tmp, height, width, radius)
}
