package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/MeKo-Tech/unsharpmask/internal/imageio"
	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
)

// envKeyReplacer maps viper keys such as filter.amount to UNSHARPMASK_FILTER_AMOUNT.
var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// filterParams reads the shared filter flags and validates them.
func filterParams() (unsharp.Params, error) {
	p := unsharp.Params{
		Amount:    viper.GetFloat64("filter.amount"),
		Radius:    viper.GetInt("filter.radius"),
		Threshold: viper.GetFloat64("filter.threshold"),
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// encodeOptions reads the shared output flags.
func encodeOptions() (imageio.Options, error) {
	opts := imageio.Options{
		PNGCompression: viper.GetString("output.png_compression"),
		JPEGQuality:    viper.GetInt("output.jpeg_quality"),
	}
	if _, err := imageio.ParsePNGCompression(opts.PNGCompression); err != nil {
		return opts, err
	}
	return opts, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received interrupt signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
