package unsharp

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/unsharpmask/internal/colorspace"
	"github.com/MeKo-Tech/unsharpmask/internal/sharpen"
)

// ApplyNRGBA sharpens img in place. NRGBA is non-premultiplied, so alpha is the
// untouched fourth sample. Sub-images and padded strides are compacted into a
// temporary buffer and copied back.
func ApplyNRGBA(img *image.NRGBA, p Params) error {
	_, err := ApplyNRGBAWithStats(img, p)
	return err
}

// ApplyNRGBAWithStats is ApplyNRGBA that also returns the sharpening stats.
func ApplyNRGBAWithStats(img *image.NRGBA, p Params) (sharpen.Stats, error) {
	if img == nil {
		return sharpen.Stats{}, fmt.Errorf("%w: nil image", ErrInvalidBufferShape)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rowLen := w * colorspace.Channels

	if img.Stride == rowLen && len(img.Pix) == rowLen*h {
		return ApplyWithStats(img.Pix, w, h, p)
	}

	// Validate before copying so a bad call never touches img.
	if w <= 0 || h <= 0 {
		return sharpen.Stats{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	if err := p.Validate(); err != nil {
		return sharpen.Stats{}, err
	}

	buf := make([]uint8, rowLen*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(buf[y*rowLen:(y+1)*rowLen], img.Pix[off:off+rowLen])
	}

	st, err := ApplyWithStats(buf, w, h, p)
	if err != nil {
		return st, err
	}

	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(img.Pix[off:off+rowLen], buf[y*rowLen:(y+1)*rowLen])
	}

	return st, nil
}
