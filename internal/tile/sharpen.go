package tile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/MeKo-Tech/unsharpmask/internal/imageio"
	"github.com/MeKo-Tech/unsharpmask/internal/mbtiles"
	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
)

// ErrVectorTiles is returned for tilesets whose tiles are not raster images.
var ErrVectorTiles = errors.New("vector tilesets cannot be sharpened")

// Options configure Sharpen.
type Options struct {
	Params  unsharp.Params
	Encode  imageio.Options
	BBox    orb.Bound // zero bound sharpens every tile
	Workers int
	Gzip    bool // gzip tile data in the output

	// OnProgress is called after each tile is written. total counts only
	// the tiles inside BBox.
	OnProgress func(done, total int)
	Logger     *slog.Logger
}

// Summary reports what Sharpen did.
type Summary struct {
	Total     int // tiles in the source
	Selected  int // tiles inside BBox
	Sharpened int
	Skipped   int // outside BBox
}

// OutputFormat returns the format sharpened tiles are encoded in for an MBTiles
// format name. webp and unknown raster names fall back to png.
func OutputFormat(name string) (imaging.Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pbf", "mvt":
		return 0, fmt.Errorf("%w: format %q", ErrVectorTiles, name)
	case "jpg", "jpeg":
		return imaging.JPEG, nil
	default:
		return imaging.PNG, nil
	}
}

// SharpenTile decodes data, sharpens it, and re-encodes it in format.
func SharpenTile(data []byte, format imaging.Format, params unsharp.Params, enc imageio.Options) ([]byte, error) {
	img, _, err := imageio.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if err := unsharp.ApplyNRGBA(img, params); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imageio.Encode(&buf, img, format, enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type job struct {
	tile maptile.Tile
	data []byte
}

// Sharpen reads every tile of the MBTiles file at inPath, sharpens it, and
// writes the result to a new MBTiles file at outPath. Source metadata is copied;
// the filter parameters are recorded in a "sharpened" metadata row.
//
// Tiles are written to a temporary file next to outPath that is renamed into
// place only on success, so a failed or cancelled run never leaves a partial
// tileset at outPath.
func Sharpen(ctx context.Context, inPath, outPath string, opts Options) (Summary, error) {
	if err := opts.Params.Validate(); err != nil {
		return Summary{}, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	r, err := mbtiles.OpenReader(inPath)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()

	meta, err := r.Metadata()
	if err != nil {
		return Summary{}, err
	}

	format, err := OutputFormat(meta.Format)
	if err != nil {
		return Summary{}, err
	}

	total, err := r.Count()
	if err != nil {
		return Summary{}, err
	}

	selected, err := countInBound(ctx, r, total, opts.BBox)
	if err != nil {
		return Summary{}, err
	}

	meta.Format = "png"
	if format == imaging.JPEG {
		meta.Format = "jpg"
	}
	if meta.Extra == nil {
		meta.Extra = make(map[string]string)
	}
	meta.Extra["sharpened"] = paramsString(opts.Params)

	tmpPath := outPath + ".tmp"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return Summary{}, fmt.Errorf("failed to remove stale %s: %w", tmpPath, err)
	}

	w, err := mbtiles.NewWithOptions(tmpPath, meta, mbtiles.WriterOptions{Gzip: opts.Gzip})
	if err != nil {
		os.Remove(tmpPath)
		return Summary{}, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		jobs     = make(chan job, workers*2)
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		done     atomic.Int64
	)

	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					continue
				}

				out, err := SharpenTile(j.data, format, opts.Params, opts.Encode)
				if err != nil {
					fail(fmt.Errorf("failed to sharpen tile %s: %w", FromTile(j.tile), err))
					continue
				}
				if err := w.WriteTile(j.tile, out); err != nil {
					fail(err)
					continue
				}

				n := int(done.Add(1))
				if opts.OnProgress != nil {
					opts.OnProgress(n, selected)
				}
			}
		}()
	}

	iterErr := r.Tiles(ctx, func(t maptile.Tile, data []byte) error {
		if !InBound(t, opts.BBox) {
			return nil
		}
		select {
		case jobs <- job{tile: t, data: data}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(jobs)
	wg.Wait()

	if iterErr != nil && firstErr == nil {
		firstErr = iterErr
	}

	if err := w.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	sum := Summary{Total: total, Selected: selected, Sharpened: int(done.Load()), Skipped: total - selected}
	if firstErr != nil {
		os.Remove(tmpPath)
		return sum, firstErr
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return sum, fmt.Errorf("failed to move tileset into place: %w", err)
	}

	log.Info("Sharpened tileset",
		"input", inPath,
		"output", outPath,
		"tiles", sum.Sharpened,
		"skipped", sum.Skipped,
		"format", meta.Format,
	)
	return sum, nil
}

// countInBound returns how many tiles of r lie inside bbox.
func countInBound(ctx context.Context, r *mbtiles.Reader, total int, bbox orb.Bound) (int, error) {
	if bbox.IsZero() {
		return total, nil
	}

	n := 0
	err := r.TileCoords(ctx, func(t maptile.Tile) error {
		if InBound(t, bbox) {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count tiles in bbox: %w", err)
	}
	return n, nil
}

func paramsString(p unsharp.Params) string {
	return "amount=" + strconv.FormatFloat(p.Amount, 'g', -1, 64) +
		",radius=" + strconv.Itoa(p.Radius) +
		",threshold=" + strconv.FormatFloat(p.Threshold, 'g', -1, 64)
}
