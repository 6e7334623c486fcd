package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/unsharpmask/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the filter over HTTP",
	Long: `Start an HTTP server. POST an image to /sharpen (query parameters amount,
radius, threshold and format override the configured defaults). With --mbtiles,
tiles of a raster tileset are served sharpened under /tiles/{z}/{x}/{y}.png.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Int("max-concurrent", runtime.NumCPU(), "Max concurrently sharpened uploads and tiles")
	serveCmd.Flags().Int64("max-body-bytes", server.DefaultMaxBodyBytes, "Maximum upload size in bytes")
	serveCmd.Flags().Int64("max-pixels", server.DefaultMaxPixels, "Maximum decoded image size in pixels")
	serveCmd.Flags().String("mbtiles", "", "Optional MBTiles file served sharpened under /tiles/")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served tiles")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"serve.addr", "addr"},
		{"serve.max_concurrent", "max-concurrent"},
		{"serve.max_body_bytes", "max-body-bytes"},
		{"serve.max_pixels", "max-pixels"},
		{"serve.mbtiles", "mbtiles"},
		{"serve.cache_control", "cache-control"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, serveCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	maxConc := viper.GetInt("serve.max_concurrent")
	maxBody := viper.GetInt64("serve.max_body_bytes")
	maxPixels := viper.GetInt64("serve.max_pixels")
	mbtilesPath := viper.GetString("serve.mbtiles")
	cacheControl := viper.GetString("serve.cache_control")

	params, err := filterParams()
	if err != nil {
		return err
	}
	enc, err := encodeOptions()
	if err != nil {
		return err
	}

	s, err := server.New(server.Config{
		Defaults:      params,
		Encode:        enc,
		MaxBodyBytes:  maxBody,
		MaxPixels:     maxPixels,
		MaxConcurrent: maxConc,
	}, logger)
	if err != nil {
		return err
	}

	var tiles *server.MBTilesHandler
	if mbtilesPath != "" {
		tiles, err = server.NewMBTilesHandler(server.MBTilesConfig{
			MBTilesPath:  mbtilesPath,
			CacheControl: cacheControl,
		}, s, logger)
		if err != nil {
			return err
		}
		defer tiles.Close()
	}

	srv := &http.Server{Addr: addr, Handler: server.NewMux(s, tiles), ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}()

	logger.Info("Sharpening server listening",
		"addr", addr,
		"max_concurrent", maxConc,
		"mbtiles", mbtilesPath,
		"amount", params.Amount,
		"radius", params.Radius,
		"threshold", params.Threshold,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
