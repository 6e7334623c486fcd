package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "unsharpmask",
	Short: "A lightness-only unsharp mask for images and raster tilesets",
	Long: `unsharpmask sharpens images by amplifying the difference between each pixel's
HSL lightness and a blurred copy of it. Hue, saturation and the alpha channel
are left alone.

It works on single files, directory trees, MBTiles raster tilesets, and over HTTP.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	def := unsharp.DefaultParams()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().Float64("amount", def.Amount, "Sharpening strength (>= 0)")
	rootCmd.PersistentFlags().Int("radius", def.Radius, "Box blur radius in pixels (>= 0)")
	rootCmd.PersistentFlags().Float64("threshold", def.Threshold, "Minimum lightness difference in [0,1] that gets sharpened")
	rootCmd.PersistentFlags().String("png-compression", "default", "PNG compression (default, speed, best, none)")
	rootCmd.PersistentFlags().Int("jpeg-quality", 92, "JPEG quality (1-100)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"verbose", "verbose"},
		{"filter.amount", "amount"},
		{"filter.radius", "radius"},
		{"filter.threshold", "threshold"},
		{"output.png_compression", "png-compression"},
		{"output.jpeg_quality", "jpeg-quality"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, rootCmd.PersistentFlags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("UNSHARPMASK")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
