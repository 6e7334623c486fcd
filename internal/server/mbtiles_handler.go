package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/unsharpmask/internal/imageio"
	"github.com/MeKo-Tech/unsharpmask/internal/mbtiles"
	"github.com/MeKo-Tech/unsharpmask/internal/tile"
)

// MBTilesHandler serves tiles from an MBTiles database, sharpened on request.
type MBTilesHandler struct {
	reader       *mbtiles.Reader
	sharpener    *Sharpener
	logger       *slog.Logger
	format       imaging.Format
	cacheControl string
}

// MBTilesConfig configures the MBTiles handler.
type MBTilesConfig struct {
	MBTilesPath  string
	CacheControl string
}

// NewMBTilesHandler creates a new MBTiles handler. Filter defaults, encoder
// options and the concurrency limit are taken from s.
func NewMBTilesHandler(cfg MBTilesConfig, s *Sharpener, logger *slog.Logger) (*MBTilesHandler, error) {
	if s == nil {
		return nil, errors.New("sharpener is required")
	}

	reader, err := mbtiles.OpenReader(cfg.MBTilesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MBTiles: %w", err)
	}

	meta, err := reader.Metadata()
	if err != nil {
		reader.Close()
		return nil, err
	}

	format, err := tile.OutputFormat(meta.Format)
	if err != nil {
		reader.Close()
		return nil, err
	}

	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}

	return &MBTilesHandler{
		reader:       reader,
		sharpener:    s,
		logger:       logger,
		format:       format,
		cacheControl: cfg.CacheControl,
	}, nil
}

// Handler returns the HTTP handler function.
func (h *MBTilesHandler) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveTile(w, r)
	}
}

// serveTile serves a single sharpened tile. The filter parameters can be
// overridden with the same query parameters as /sharpen.
func (h *MBTilesHandler) serveTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	coords, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	s := h.sharpener
	params, err := ParseParams(r.URL.Query(), s.cfg.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := h.reader.ReadTile(coords.Tile())
	if errors.Is(err, mbtiles.ErrTileNotFound) {
		http.Error(w, "Tile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log().Error("Failed to read tile", "coords", coords.String(), "error", err)
		http.Error(w, "failed to read tile", http.StatusInternalServerError)
		return
	}

	release, err := s.limit.acquire(r.Context())
	if err != nil {
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}
	out, err := tile.SharpenTile(data, h.format, params, s.cfg.Encode)
	release()
	if err != nil {
		s.tilesFailed.Add(1)
		h.log().Error("Failed to sharpen tile", "coords", coords.String(), "error", err)
		http.Error(w, "failed to sharpen tile", http.StatusInternalServerError)
		return
	}

	s.tiles.Add(1)
	w.Header().Set("Cache-Control", h.cacheControl)
	w.Header().Set("Content-Type", imageio.ContentType(h.format))

	if _, err := w.Write(out); err != nil {
		h.log().Error("Failed to write response", "error", err)
	}
}

// Close closes the MBTiles reader.
func (h *MBTilesHandler) Close() error {
	return h.reader.Close()
}

func (h *MBTilesHandler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

// parseTilePath parses a tile path like /tiles/13/4317/2692.png.
// Any image extension is accepted; the tileset decides the served format.
func parseTilePath(requestPath string) (tile.Coords, bool) {
	if !strings.HasPrefix(requestPath, "/tiles/") {
		return tile.Coords{}, false
	}

	rest := strings.TrimPrefix(requestPath, "/tiles/")
	ext := path.Ext(rest)
	if ext == "" || !imageio.IsSupported(rest) {
		return tile.Coords{}, false
	}

	coords, err := tile.ParseCoords(strings.TrimSuffix(rest, ext))
	if err != nil {
		return tile.Coords{}, false
	}

	return coords, true
}
