// Package imageio loads images into compact NRGBA buffers and writes them back out.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultJPEGQuality is used when Options.JPEGQuality is unset.
const DefaultJPEGQuality = 92

// ErrTooManyPixels is returned by DecodeLimited when the image header declares
// more pixels than allowed.
var ErrTooManyPixels = errors.New("image has too many pixels")

// Options control encoding.
type Options struct {
	PNGCompression string // default, speed, best, none
	JPEGQuality    int    // 1-100, 0 uses DefaultJPEGQuality
}

// inputExtensions are the decodable file extensions (lower case, with dot).
var inputExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsSupported reports whether path has a decodable image extension.
func IsSupported(path string) bool {
	return inputExtensions[strings.ToLower(filepath.Ext(path))]
}

// ParsePNGCompression maps a compression name to a png.CompressionLevel.
func ParsePNGCompression(s string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return png.DefaultCompression, nil
	case "speed", "fast":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	case "none":
		return png.NoCompression, nil
	default:
		return png.DefaultCompression, fmt.Errorf("invalid png compression %q (default, speed, best, none)", s)
	}
}

// ParseFormat resolves an output format name such as "png" or "jpg".
func ParseFormat(s string) (imaging.Format, error) {
	f, err := imaging.FormatFromExtension(strings.TrimPrefix(strings.ToLower(s), "."))
	if err != nil {
		return 0, fmt.Errorf("unsupported output format %q", s)
	}
	return f, nil
}

// Load decodes the image at path, applying EXIF orientation, and returns it as
// a compact NRGBA (origin at 0,0, stride 4*width).
func Load(path string) (*image.NRGBA, imaging.Format, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		// webp decodes but cannot be re-encoded; fall back to png.
		format = imaging.PNG
	}

	return ToNRGBA(img), format, nil
}

// Decode reads an image from r and returns it as a compact NRGBA.
func Decode(r io.Reader) (*image.NRGBA, string, error) {
	return DecodeLimited(r, 0)
}

// DecodeLimited is Decode that rejects images whose header declares more than
// maxPixels pixels before any pixel data is decoded. maxPixels <= 0 means no limit.
func DecodeLimited(r io.Reader, maxPixels int64) (*image.NRGBA, string, error) {
	// image.DecodeConfig consumes the header, so buffer the stream once.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, name, fmt.Errorf("%w: %dx%d exceeds %d", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	return ToNRGBA(img), name, nil
}

// ToNRGBA returns img as a compact NRGBA. Compact NRGBA inputs are returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		b := n.Bounds()
		if b.Min == (image.Point{}) && n.Stride == 4*b.Dx() {
			return n
		}
	}
	return imaging.Clone(img)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format imaging.Format, opts Options) error {
	level, err := ParsePNGCompression(opts.PNGCompression)
	if err != nil {
		return err
	}
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	if err := imaging.Encode(w, img, format,
		imaging.PNGCompressionLevel(level),
		imaging.JPEGQuality(quality),
	); err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return nil
}

// Save writes img to path, choosing the format from the file extension.
// Parent directories are created as needed.
func Save(img image.Image, path string, opts Options) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("unsupported output format for %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := Encode(f, img, format, opts); err != nil {
		f.Close() // nolint:errcheck
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// ContentType returns the MIME type for an output format.
func ContentType(format imaging.Format) string {
	switch format {
	case imaging.JPEG:
		return "image/jpeg"
	case imaging.GIF:
		return "image/gif"
	case imaging.TIFF:
		return "image/tiff"
	case imaging.BMP:
		return "image/bmp"
	default:
		return "image/png"
	}
}
