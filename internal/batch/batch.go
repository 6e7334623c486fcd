// Package batch sharpens image files on disk, one worker.Task per file.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/MeKo-Tech/unsharpmask/internal/hasher"
	"github.com/MeKo-Tech/unsharpmask/internal/imageio"
	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
	"github.com/MeKo-Tech/unsharpmask/internal/worker"
)

// Options control how files are written.
type Options struct {
	Encode imageio.Options
	Digest bool // log the xxHash64 of every sharpened pixel buffer
}

// Sharpener loads, filters, and saves images. It implements worker.Processor.
type Sharpener struct {
	params  unsharp.Params
	opts    Options
	logger  *slog.Logger
	skipped atomic.Int64
}

// NewSharpener validates params and returns a Sharpener.
func NewSharpener(params unsharp.Params, opts Options, logger *slog.Logger) (*Sharpener, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if _, err := imageio.ParsePNGCompression(opts.Encode.PNGCompression); err != nil {
		return nil, err
	}

	return &Sharpener{
		params: params,
		opts:   opts,
		logger: logger,
	}, nil
}

// Process sharpens task.Input into task.Output.
// Existing outputs are kept unless task.Force is set.
func (s *Sharpener) Process(ctx context.Context, task worker.Task) (string, error) {
	if task.Output == "" {
		return "", fmt.Errorf("no output path for %s", task.Input)
	}
	if !task.Force {
		if _, err := os.Stat(task.Output); err == nil {
			s.log().Debug("Output already exists; skipping", "input", task.Input, "output", task.Output)
			s.skipped.Add(1)
			return task.Output, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, _, err := imageio.Load(task.Input)
	if err != nil {
		return "", err
	}

	st, err := unsharp.ApplyNRGBAWithStats(img, s.params)
	if err != nil {
		return "", fmt.Errorf("failed to sharpen %s: %w", task.Input, err)
	}

	logFields := []any{
		"input", task.Input,
		"size", fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()),
		"changed", st.Changed,
	}
	if st.Underflow() {
		logFields = append(logFields, "min_lightness", st.Min)
	}
	if s.opts.Digest {
		logFields = append(logFields, "digest", hasher.PixelDigest(img.Pix))
	}
	s.log().Debug("Sharpened image", logFields...)

	if err := imageio.Save(img, task.Output, s.opts.Encode); err != nil {
		return "", err
	}

	return task.Output, nil
}

// Skipped returns how many tasks were left alone because their output existed.
func (s *Sharpener) Skipped() int {
	return int(s.skipped.Load())
}

func (s *Sharpener) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// ScanDir walks inputDir and returns one task per decodable image, writing to the
// same relative path under outputDir. A non-empty format replaces the extension.
// Hidden directories are skipped. Tasks are sorted by input path.
func ScanDir(inputDir, outputDir, format string, force bool) ([]worker.Task, error) {
	if format != "" {
		if _, err := imageio.ParseFormat(format); err != nil {
			return nil, err
		}
	}

	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}

	var tasks []worker.Task

	err = filepath.Walk(inputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != inputDir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			// Never descend into the output tree when it lives inside the input.
			if abs, err := filepath.Abs(path); err == nil && abs == absOut && path != inputDir {
				return filepath.SkipDir
			}
			return nil
		}

		if !imageio.IsSupported(path) {
			return nil
		}

		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}

		out := filepath.Join(outputDir, rel)
		switch {
		case format != "":
			out = strings.TrimSuffix(out, filepath.Ext(out)) + "." + strings.TrimPrefix(strings.ToLower(format), ".")
		case strings.EqualFold(filepath.Ext(out), ".webp"):
			// webp can only be decoded.
			out = strings.TrimSuffix(out, filepath.Ext(out)) + ".png"
		}

		tasks = append(tasks, worker.Task{
			Input:  path,
			Output: out,
			Force:  force,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", inputDir, err)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Input < tasks[j].Input })
	return tasks, nil
}
