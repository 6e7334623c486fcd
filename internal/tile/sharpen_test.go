package tile

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/unsharpmask/internal/imageio"
	"github.com/MeKo-Tech/unsharpmask/internal/mbtiles"
	"github.com/MeKo-Tech/unsharpmask/internal/pattern"
	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
)

func encodePNG(t *testing.T, seed int64) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, pattern.Noise(32, 32, 4, seed)))
	return buf.Bytes()
}

func writeTileset(t *testing.T, path, format string, tiles map[maptile.Tile][]byte) {
	t.Helper()
	w, err := mbtiles.New(path, mbtiles.Metadata{Name: "src", Format: format, MinZoom: 1, MaxZoom: 2})
	require.NoError(t, err)
	for tl, data := range tiles {
		require.NoError(t, w.WriteTile(tl, data))
	}
	require.NoError(t, w.Close())
}

func TestSharpenTileset(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mbtiles")
	out := filepath.Join(dir, "out.mbtiles")

	src := map[maptile.Tile][]byte{
		maptile.New(0, 0, 1): encodePNG(t, 1),
		maptile.New(1, 0, 1): encodePNG(t, 2),
		maptile.New(3, 2, 2): encodePNG(t, 3),
	}
	writeTileset(t, in, "png", src)

	var calls atomic.Int32
	params := unsharp.Params{Amount: 1.5, Radius: 1, Threshold: 0}
	sum, err := Sharpen(context.Background(), in, out, Options{
		Params:     params,
		Workers:    2,
		Gzip:       true,
		OnProgress: func(done, total int) { calls.Add(1) },
	})
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 3, Selected: 3, Sharpened: 3}, sum)
	require.EqualValues(t, 3, calls.Load())

	r, err := mbtiles.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()

	meta, err := r.Metadata()
	require.NoError(t, err)
	require.Equal(t, "src", meta.Name)
	require.Equal(t, "png", meta.Format)
	require.Equal(t, "amount=1.5,radius=1,threshold=0", meta.Extra["sharpened"])

	for tl, data := range src {
		got, err := r.ReadTile(tl)
		require.NoError(t, err)

		want, err := SharpenTile(data, imaging.PNG, params, imageio.Options{})
		require.NoError(t, err)

		gotImg, _, err := imageio.Decode(bytes.NewReader(got))
		require.NoError(t, err)
		wantImg, _, err := imageio.Decode(bytes.NewReader(want))
		require.NoError(t, err)
		require.Equal(t, wantImg.Pix, gotImg.Pix, "tile %v", tl)
	}
}

func TestSharpenTilesetBBox(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mbtiles")
	out := filepath.Join(dir, "out.mbtiles")

	west := maptile.At(orb.Point{-100, 40}, 2)
	east := maptile.At(orb.Point{100, 40}, 2)
	writeTileset(t, in, "png", map[maptile.Tile][]byte{
		west: encodePNG(t, 4),
		east: encodePNG(t, 5),
	})

	var totals []int
	sum, err := Sharpen(context.Background(), in, out, Options{
		Params:     unsharp.DefaultParams(),
		BBox:       orb.Bound{Min: orb.Point{90, 30}, Max: orb.Point{110, 50}},
		OnProgress: func(done, total int) { totals = append(totals, total) },
	})
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 2, Selected: 1, Sharpened: 1, Skipped: 1}, sum)
	require.Equal(t, []int{1}, totals)

	r, err := mbtiles.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadTile(east)
	require.NoError(t, err)
	_, err = r.ReadTile(west)
	require.ErrorIs(t, err, mbtiles.ErrTileNotFound)
}

func TestSharpenRejectsVectorTiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mbtiles")
	writeTileset(t, in, "pbf", map[maptile.Tile][]byte{maptile.New(0, 0, 0): []byte("mvt")})

	_, err := Sharpen(context.Background(), in, filepath.Join(dir, "out.mbtiles"), Options{Params: unsharp.DefaultParams()})
	require.ErrorIs(t, err, ErrVectorTiles)
}

func TestSharpenStopsOnBadTile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mbtiles")
	writeTileset(t, in, "png", map[maptile.Tile][]byte{maptile.New(0, 0, 0): []byte("not a png")})

	out := filepath.Join(dir, "out.mbtiles")
	_, err := Sharpen(context.Background(), in, out, Options{Params: unsharp.DefaultParams()})
	require.Error(t, err)

	require.NoFileExists(t, out)
	require.NoFileExists(t, out+".tmp")
}

func TestSharpenReplacesOutputOnSuccess(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mbtiles")
	out := filepath.Join(dir, "out.mbtiles")
	writeTileset(t, in, "png", map[maptile.Tile][]byte{maptile.New(0, 0, 1): encodePNG(t, 6)})

	// Leftovers from an interrupted run.
	require.NoError(t, os.WriteFile(out+".tmp", []byte("stale"), 0o644))

	_, err := Sharpen(context.Background(), in, out, Options{Params: unsharp.DefaultParams()})
	require.NoError(t, err)
	require.FileExists(t, out)
	require.NoFileExists(t, out+".tmp")

	r, err := mbtiles.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()
	n, err := r.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSharpenKeepsExistingOutputOnFailure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mbtiles")
	out := filepath.Join(dir, "out.mbtiles")
	writeTileset(t, in, "png", map[maptile.Tile][]byte{maptile.New(0, 0, 0): []byte("not a png")})
	require.NoError(t, os.WriteFile(out, []byte("previous"), 0o644))

	_, err := Sharpen(context.Background(), in, out, Options{Params: unsharp.DefaultParams()})
	require.Error(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "previous", string(got))
	require.NoFileExists(t, out+".tmp")
}

func TestSharpenValidatesParams(t *testing.T) {
	_, err := Sharpen(context.Background(), "unused", "unused", Options{Params: unsharp.Params{Amount: -1}})
	require.True(t, errors.Is(err, unsharp.ErrInvalidParameter))
}

func TestOutputFormat(t *testing.T) {
	for name, want := range map[string]imaging.Format{"png": imaging.PNG, "JPG": imaging.JPEG, "jpeg": imaging.JPEG, "webp": imaging.PNG, "": imaging.PNG} {
		got, err := OutputFormat(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}
	_, err := OutputFormat("pbf")
	require.ErrorIs(t, err, ErrVectorTiles)
}
