package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/unsharpmask/internal/batch"
	"github.com/MeKo-Tech/unsharpmask/internal/worker"
)

var sharpenCmd = &cobra.Command{
	Use:   "sharpen",
	Short: "Sharpen an image file or a directory of images",
	Long: `Sharpen a single image (--input/--output) or every decodable image below
--input-dir into the same relative paths under --output-dir.`,
	RunE: runSharpen,
}

func init() {
	rootCmd.AddCommand(sharpenCmd)

	// Single file flags
	sharpenCmd.Flags().StringP("input", "i", "", "Input image (single file mode)")
	sharpenCmd.Flags().StringP("output", "o", "", "Output image (single file mode; default: <input>-sharp.<ext>)")

	// Batch flags
	sharpenCmd.Flags().String("input-dir", "", "Input directory (batch mode)")
	sharpenCmd.Flags().String("output-dir", "./sharpened", "Output directory (batch mode)")
	sharpenCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	sharpenCmd.Flags().Bool("progress", true, "Show progress bar during batch sharpening")
	sharpenCmd.Flags().String("format", "", "Output format for batch mode (png, jpg, ...; default: keep input format)")
	sharpenCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some images fail")

	// Common flags
	sharpenCmd.Flags().Bool("force", false, "Overwrite outputs that already exist")
	sharpenCmd.Flags().Bool("digest", false, "Log the xxHash64 digest of every sharpened pixel buffer")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"sharpen.input", "input"},
		{"sharpen.output", "output"},
		{"sharpen.input_dir", "input-dir"},
		{"sharpen.output_dir", "output-dir"},
		{"sharpen.workers", "workers"},
		{"sharpen.progress", "progress"},
		{"sharpen.format", "format"},
		{"sharpen.allow_failures", "allow-failures"},
		{"sharpen.force", "force"},
		{"sharpen.digest", "digest"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, sharpenCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runSharpen(cmd *cobra.Command, args []string) error {
	input := viper.GetString("sharpen.input")
	output := viper.GetString("sharpen.output")
	inputDir := viper.GetString("sharpen.input_dir")
	outputDir := viper.GetString("sharpen.output_dir")
	workers := viper.GetInt("sharpen.workers")
	showProgress := viper.GetBool("sharpen.progress")
	format := viper.GetString("sharpen.format")
	allowFailures := viper.GetBool("sharpen.allow_failures")
	force := viper.GetBool("sharpen.force")
	digest := viper.GetBool("sharpen.digest")

	if logger == nil {
		initLogging()
	}

	if (input == "") == (inputDir == "") {
		return fmt.Errorf("exactly one of --input or --input-dir is required")
	}

	params, err := filterParams()
	if err != nil {
		return err
	}
	enc, err := encodeOptions()
	if err != nil {
		return err
	}

	s, err := batch.NewSharpener(params, batch.Options{Encode: enc, Digest: digest}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if input != "" {
		if output == "" {
			output = defaultOutputPath(input)
		}
		if err := checkOutputPath(input, output, force); err != nil {
			return err
		}
		out, err := s.Process(ctx, worker.Task{Input: input, Output: output, Force: force})
		if err != nil {
			return err
		}
		logger.Info("Sharpened image",
			"input", input,
			"output", out,
			"amount", params.Amount,
			"radius", params.Radius,
			"threshold", params.Threshold,
		)
		return nil
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tasks, err := batch.ScanDir(inputDir, outputDir, format, force)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		logger.Warn("No images found", "input_dir", inputDir)
		return nil
	}

	return runBatch(ctx, s, tasks, workers, showProgress, allowFailures)
}

func runBatch(ctx context.Context, p *batch.Sharpener, tasks []worker.Task, workers int, showProgress, allowFailures bool) error {
	progress := worker.NewProgress(len(tasks), "images", showProgress)

	pool := worker.New(worker.Config{
		Workers:    workers,
		Processor:  p,
		OnProgress: progress.Callback(),
	})

	logger.Info("Sharpening images", "count", len(tasks), "workers", workers)
	results := pool.Run(ctx, tasks)
	progress.SetSkipped(p.Skipped())
	progress.Done()

	var failedCount int
	for _, r := range results {
		if r.Err != nil {
			failedCount++
			logger.Error("Sharpening failed", "input", r.Task.Input, "error", r.Err)
		}
	}

	logger.Info(progress.Summary())

	if failedCount > 0 {
		if allowFailures {
			logger.Warn("Some images failed, but continuing due to --allow-failures flag", "failed_count", failedCount)
			return nil
		}
		return fmt.Errorf("%d of %d images failed to sharpen", failedCount, len(tasks))
	}
	return nil
}

// checkOutputPath rejects writing over the input and, unless force is set,
// over any existing file.
func checkOutputPath(input, output string, force bool) error {
	absIn, err := filepath.Abs(input)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", input, err)
	}
	absOut, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", output, err)
	}
	if absIn == absOut {
		return fmt.Errorf("output %s must differ from input", output)
	}

	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("output %s already exists (use --force to overwrite)", output)
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to check output: %w", err)
	}
	return nil
}

// defaultOutputPath inserts "-sharp" before the extension. webp inputs are written as png.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if strings.EqualFold(ext, ".webp") {
		ext = ".png"
	}
	return base + "-sharp" + ext
}
