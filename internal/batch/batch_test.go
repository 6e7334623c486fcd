package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/unsharpmask/internal/imageio"
	"github.com/MeKo-Tech/unsharpmask/internal/pattern"
	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
	"github.com/MeKo-Tech/unsharpmask/internal/worker"
	"github.com/stretchr/testify/require"
)

func writeInputs(t *testing.T, dir string) {
	t.Helper()

	noise := pattern.Noise(24, 16, 5, 3)
	step := pattern.StepEdge(20, 10, 40, 210, 180)

	require.NoError(t, imageio.Save(noise, filepath.Join(dir, "noise.png"), imageio.Options{}))
	require.NoError(t, imageio.Save(step, filepath.Join(dir, "sub", "step.png"), imageio.Options{}))
	require.NoError(t, imageio.Save(step, filepath.Join(dir, ".cache", "hidden.png"), imageio.Options{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not an image"), 0o644))
}

func TestScanDir(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeInputs(t, in)

	tasks, err := ScanDir(in, out, "", false)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.Equal(t, filepath.Join(in, "noise.png"), tasks[0].Input)
	require.Equal(t, filepath.Join(out, "noise.png"), tasks[0].Output)
	require.Equal(t, filepath.Join(out, "sub", "step.png"), tasks[1].Output)

	tasks, err = ScanDir(in, out, "jpg", true)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(out, "noise.jpg"), tasks[0].Output)
	require.True(t, tasks[0].Force)

	_, err = ScanDir(in, out, "webp", false)
	require.Error(t, err)
}

func TestScanDirSkipsNestedOutput(t *testing.T) {
	in := t.TempDir()
	writeInputs(t, in)
	out := filepath.Join(in, "sharpened")
	require.NoError(t, imageio.Save(pattern.StepEdge(4, 4, 0, 255, 255), filepath.Join(out, "old.png"), imageio.Options{}))

	tasks, err := ScanDir(in, out, "", false)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestSharpenerBatchRun(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeInputs(t, in)

	tasks, err := ScanDir(in, out, "", false)
	require.NoError(t, err)

	s, err := NewSharpener(unsharp.Params{Amount: 1.5, Radius: 1, Threshold: 0}, Options{Digest: true}, nil)
	require.NoError(t, err)

	pool := worker.New(worker.Config{Workers: 2, Processor: s})
	results := pool.Run(context.Background(), tasks)
	require.Len(t, results, len(tasks))
	for _, r := range results {
		require.NoError(t, r.Err)
		require.FileExists(t, r.Output)
	}

	src, _, err := imageio.Load(filepath.Join(in, "sub", "step.png"))
	require.NoError(t, err)
	got, _, err := imageio.Load(filepath.Join(out, "sub", "step.png"))
	require.NoError(t, err)

	require.Equal(t, src.Bounds(), got.Bounds())
	for i := 3; i < len(src.Pix); i += 4 {
		require.Equal(t, src.Pix[i], got.Pix[i], "alpha must be preserved")
	}
	require.NotEqual(t, src.Pix, got.Pix, "step edge should be sharpened")
}

func TestSharpenerSkipsExistingUnlessForced(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	output := filepath.Join(dir, "out.png")
	require.NoError(t, imageio.Save(pattern.StepEdge(10, 4, 30, 220, 255), input, imageio.Options{}))
	require.NoError(t, os.WriteFile(output, []byte("placeholder"), 0o644))

	s, err := NewSharpener(unsharp.DefaultParams(), Options{}, nil)
	require.NoError(t, err)

	_, err = s.Process(context.Background(), worker.Task{Input: input, Output: output})
	require.NoError(t, err)
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, "placeholder", string(data))
	require.Equal(t, 1, s.Skipped())

	_, err = s.Process(context.Background(), worker.Task{Input: input, Output: output, Force: true})
	require.NoError(t, err)
	require.Equal(t, 1, s.Skipped())
	_, _, err = imageio.Load(output)
	require.NoError(t, err)
}

func TestNewSharpenerValidates(t *testing.T) {
	_, err := NewSharpener(unsharp.Params{Radius: -1}, Options{}, nil)
	require.ErrorIs(t, err, unsharp.ErrInvalidRadius)

	_, err = NewSharpener(unsharp.DefaultParams(), Options{Encode: imageio.Options{PNGCompression: "max"}}, nil)
	require.Error(t, err)
}

func TestSharpenerProcessErrors(t *testing.T) {
	s, err := NewSharpener(unsharp.DefaultParams(), Options{}, nil)
	require.NoError(t, err)

	_, err = s.Process(context.Background(), worker.Task{Input: "missing.png"})
	require.Error(t, err)

	_, err = s.Process(context.Background(), worker.Task{
		Input:  filepath.Join(t.TempDir(), "missing.png"),
		Output: filepath.Join(t.TempDir(), "out.png"),
	})
	require.Error(t, err)
}
