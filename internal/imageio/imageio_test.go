package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 5; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(40 * x), G: uint8(80 * y), B: 200, A: uint8(50*x + 5)})
		}
	}
	return img
}

func TestSaveLoadPNGRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.png")
	src := testImage()

	require.NoError(t, Save(src, path, Options{PNGCompression: "best"}))

	got, format, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, imaging.PNG, format)
	require.Equal(t, src.Bounds(), got.Bounds())
	require.Equal(t, src.Pix, got.Pix, "png round trip must be lossless including alpha")
}

func TestSaveRejectsUnknownExtension(t *testing.T) {
	err := Save(testImage(), filepath.Join(t.TempDir(), "out.xyz"), Options{})
	require.Error(t, err)
}

func TestDecodeFromReader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))

	img, name, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, "png", name)
	require.Equal(t, testImage().Pix, img.Pix)
}

func TestDecodeGarbage(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}

func TestEncodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testImage(), imaging.JPEG, Options{JPEGQuality: 80}))

	_, name, err := image.DecodeConfig(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, "jpeg", name)
}

func TestToNRGBACompactsSubImage(t *testing.T) {
	src := testImage()
	sub := src.SubImage(image.Rect(1, 1, 4, 3)).(*image.NRGBA)

	got := ToNRGBA(sub)
	require.Equal(t, image.Rect(0, 0, 3, 2), got.Bounds())
	require.Equal(t, 12, got.Stride)
	require.Equal(t, src.NRGBAAt(1, 1), got.NRGBAAt(0, 0))
	require.Equal(t, src.NRGBAAt(3, 2), got.NRGBAAt(2, 1))

	require.Same(t, src, ToNRGBA(src), "compact images are returned as is")
}

func TestParsePNGCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    png.CompressionLevel
		wantErr bool
	}{
		{"", png.DefaultCompression, false},
		{"default", png.DefaultCompression, false},
		{"speed", png.BestSpeed, false},
		{"BEST", png.BestCompression, false},
		{"none", png.NoCompression, false},
		{"ultra", png.DefaultCompression, true},
	}

	for _, tt := range tests {
		got, err := ParsePNGCompression(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePNGCompression(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePNGCompression(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestParseFormatAndSupport(t *testing.T) {
	f, err := ParseFormat("jpg")
	require.NoError(t, err)
	require.Equal(t, imaging.JPEG, f)

	f, err = ParseFormat(".PNG")
	require.NoError(t, err)
	require.Equal(t, imaging.PNG, f)

	_, err = ParseFormat("webp")
	require.Error(t, err, "webp can be decoded but not encoded")

	require.True(t, IsSupported("a/b/photo.WEBP"))
	require.True(t, IsSupported("scan.tiff"))
	require.False(t, IsSupported("notes.txt"))

	require.Equal(t, "image/jpeg", ContentType(imaging.JPEG))
	require.Equal(t, "image/png", ContentType(imaging.PNG))
}

func TestDecodeLimited(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 300, 200))))
	data := buf.Bytes()

	_, _, err := DecodeLimited(bytes.NewReader(data), 300*200-1)
	require.ErrorIs(t, err, ErrTooManyPixels)

	img, _, err := DecodeLimited(bytes.NewReader(data), 300*200)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 300, 200), img.Bounds())

	_, _, err = DecodeLimited(bytes.NewReader(data), 0)
	require.NoError(t, err, "zero disables the limit")
}
