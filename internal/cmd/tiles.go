package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/unsharpmask/internal/tile"
	"github.com/MeKo-Tech/unsharpmask/internal/worker"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "Sharpen every tile of an MBTiles raster tileset",
	Long: `Read a raster MBTiles file, sharpen each tile, and write the results with the
source metadata to a new MBTiles file.`,
	RunE: runTiles,
}

func init() {
	rootCmd.AddCommand(tilesCmd)

	tilesCmd.Flags().StringP("input", "i", "", "Input MBTiles file")
	tilesCmd.Flags().StringP("output", "o", "", "Output MBTiles file")
	tilesCmd.Flags().String("bbox", "", "Only sharpen tiles overlapping minLon,minLat,maxLon,maxLat")
	tilesCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	tilesCmd.Flags().Bool("progress", true, "Show progress bar")
	tilesCmd.Flags().Bool("gzip", false, "Gzip tile data in the output")
	tilesCmd.Flags().Bool("force", false, "Overwrite the output file if it exists")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"tiles.input", "input"},
		{"tiles.output", "output"},
		{"tiles.bbox", "bbox"},
		{"tiles.workers", "workers"},
		{"tiles.progress", "progress"},
		{"tiles.gzip", "gzip"},
		{"tiles.force", "force"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, tilesCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runTiles(cmd *cobra.Command, args []string) error {
	input := viper.GetString("tiles.input")
	output := viper.GetString("tiles.output")
	bboxStr := viper.GetString("tiles.bbox")
	workers := viper.GetInt("tiles.workers")
	showProgress := viper.GetBool("tiles.progress")
	gz := viper.GetBool("tiles.gzip")
	force := viper.GetBool("tiles.force")

	if logger == nil {
		initLogging()
	}

	if input == "" || output == "" {
		return fmt.Errorf("--input and --output are required")
	}
	// An existing output is only replaced once the new tileset is complete.
	if err := checkOutputPath(input, output, force); err != nil {
		return err
	}

	bbox, err := tile.ParseBBox(bboxStr)
	if err != nil {
		return err
	}
	params, err := filterParams()
	if err != nil {
		return err
	}
	enc, err := encodeOptions()
	if err != nil {
		return err
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := signalContext()
	defer cancel()

	progress := worker.NewProgress(0, "tiles", showProgress)
	sum, err := tile.Sharpen(ctx, input, output, tile.Options{
		Params:     params,
		Encode:     enc,
		BBox:       bbox,
		Workers:    workers,
		Gzip:       gz,
		OnProgress: func(done, total int) { progress.Update(done, total, 0) },
		Logger:     logger,
	})
	progress.SetSkipped(sum.Skipped)
	progress.Done()
	if err != nil {
		return err
	}

	logger.Info(progress.Summary(), "total", sum.Total, "skipped", sum.Skipped)
	return nil
}
