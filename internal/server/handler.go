// Package server exposes the unsharp mask over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/unsharpmask/internal/hasher"
	"github.com/MeKo-Tech/unsharpmask/internal/imageio"
	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
)

// DefaultMaxBodyBytes limits uploaded images when Config.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 32 << 20

// DefaultMaxPixels limits decoded image size when Config.MaxPixels is unset.
const DefaultMaxPixels = 40_000_000

// DigestHeader carries the xxHash64 of the sharpened pixel buffer.
const DigestHeader = "X-Pixel-Digest"

// Config configures the sharpening handler.
type Config struct {
	Defaults      unsharp.Params // used for query parameters that are absent
	Encode        imageio.Options
	MaxBodyBytes  int64
	MaxPixels     int64 // width*height limit checked before decoding
	MaxConcurrent int   // shared by /sharpen and /tiles
}

// Status is the JSON body of the status endpoint.
type Status struct {
	Active         int   `json:"active"`
	Queued         int   `json:"queued"`
	TotalSharpened int64 `json:"total_sharpened"`
	TotalFailed    int64 `json:"total_failed"`
	TotalTiles     int64 `json:"total_tiles"`
	TilesFailed    int64 `json:"tiles_failed"`
	MaxConcurrent  int   `json:"max_concurrent"`
}

// Sharpener handles POST /sharpen requests.
type Sharpener struct {
	cfg    Config
	logger *slog.Logger
	limit  *limiter

	total       atomic.Int64
	failed      atomic.Int64
	tiles       atomic.Int64
	tilesFailed atomic.Int64
}

// New validates cfg and returns a Sharpener.
func New(cfg Config, logger *slog.Logger) (*Sharpener, error) {
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default parameters: %w", err)
	}
	if _, err := imageio.ParsePNGCompression(cfg.Encode.PNGCompression); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = DefaultMaxPixels
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU()
	}

	return &Sharpener{
		cfg:    cfg,
		logger: logger,
		limit:  newLimiter(cfg.MaxConcurrent),
	}, nil
}

// ParseParams reads amount, radius and threshold from q, falling back to defaults.
// The result is validated.
func ParseParams(q url.Values, defaults unsharp.Params) (unsharp.Params, error) {
	p := defaults

	if v := q.Get("amount"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("%w: amount %q", unsharp.ErrInvalidParameter, v)
		}
		p.Amount = f
	}
	if v := q.Get("radius"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: radius %q", unsharp.ErrInvalidRadius, v)
		}
		p.Radius = i
	}
	if v := q.Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("%w: threshold %q", unsharp.ErrInvalidParameter, v)
		}
		p.Threshold = f
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Handler returns the HTTP handler for image uploads.
func (s *Sharpener) Handler() http.Handler {
	return http.HandlerFunc(s.serveSharpen)
}

func (s *Sharpener) serveSharpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params, err := ParseParams(r.URL.Query(), s.cfg.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var format imaging.Format
	explicitFormat := r.URL.Query().Get("format")
	if explicitFormat != "" {
		format, err = imageio.ParseFormat(explicitFormat)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	// Wait for a slot; the request may be cancelled while queued.
	release, err := s.limit.acquire(r.Context())
	if err != nil {
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}
	defer release()

	start := time.Now()
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	img, name, err := imageio.DecodeLimited(body, s.cfg.MaxPixels)
	if err != nil {
		s.failed.Add(1)
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			http.Error(w, fmt.Sprintf("image exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		case errors.Is(err, imageio.ErrTooManyPixels):
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		default:
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		}
		return
	}

	if explicitFormat == "" {
		format, err = imageio.ParseFormat(name)
		if err != nil {
			// Decodable but not encodable (webp).
			format = imaging.PNG
		}
	}

	st, err := unsharp.ApplyNRGBAWithStats(img, params)
	if err != nil {
		s.failed.Add(1)
		s.log().Error("Failed to sharpen upload", "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", imageio.ContentType(format))
	w.Header().Set(DigestHeader, hasher.PixelDigest(img.Pix))
	w.Header().Set("X-Sharpen-Changed", strconv.Itoa(st.Changed))

	if err := imageio.Encode(w, img, format, s.cfg.Encode); err != nil {
		s.failed.Add(1)
		s.log().Error("Failed to write response", "error", err)
		return
	}

	s.total.Add(1)
	s.log().Debug("Sharpened upload",
		"size", fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()),
		"format", strings.ToLower(format.String()),
		"amount", params.Amount,
		"radius", params.Radius,
		"threshold", params.Threshold,
		"elapsed", time.Since(start),
	)
}

// Status returns the current counters.
func (s *Sharpener) Status() Status {
	return Status{
		Active:         int(s.limit.active.Load()),
		Queued:         int(s.limit.queued.Load()),
		TotalSharpened: s.total.Load(),
		TotalFailed:    s.failed.Load(),
		TotalTiles:     s.tiles.Load(),
		TilesFailed:    s.tilesFailed.Load(),
		MaxConcurrent:  s.cfg.MaxConcurrent,
	}
}

// StatusHandler returns an HTTP handler that serves Status as JSON.
func (s *Sharpener) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
			s.log().Error("Failed to encode status", "error", err)
		}
	})
}

func (s *Sharpener) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// statusFor maps filter errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, unsharp.ErrInvalidParameter),
		errors.Is(err, unsharp.ErrInvalidRadius),
		errors.Is(err, unsharp.ErrInvalidDimensions),
		errors.Is(err, unsharp.ErrInvalidBufferShape):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WithCORS allows cross-origin requests and answers preflight requests.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Expose-Headers", DigestHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewMux wires the sharpening endpoints. tiles may be nil; when set it should
// have been created with s so both endpoints share one concurrency limit.
func NewMux(s *Sharpener, tiles *MBTilesHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/sharpen", WithCORS(s.Handler()))
	mux.Handle("/status", WithCORS(s.StatusHandler()))
	if tiles != nil {
		mux.Handle("/tiles/", WithCORS(tiles.Handler()))
	}
	return mux
}
