package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"polaroid-extractor/internal/config"
	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
)

// app carries what the persistent pre-run resolved for the subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	noColor bool

	cfg    config.Config
	logger logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "polaroid-extract",
		Short: "Find polaroids on flatbed scans and save each one as a straightened PNG",
		Long: `polaroid-extract locates instant photos laid out on a scanner bed, separates
touching prints with a watershed segmentation and writes every photo as an
upright, sharpened crop at the scan's full resolution.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file path (YAML)")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "console", "log format: console or json")
	flags.StringP("output", "o", "out", "directory for extracted polaroids")
	flags.String("preview-dir", "", "write segmentation and contour previews here")
	flags.Bool("overwrite", false, "replace existing output files")
	flags.IntP("jobs", "j", 0, "scans processed in parallel (default GOMAXPROCS)")

	p := models.DefaultParams()
	flags.Int("median-kernel", p.MedianBlurKernel, "median blur kernel size")
	flags.Int("threshold", p.ThresholdValue, "binarization threshold (0-255)")
	flags.Int("struct-size", p.StructuringElementSize, "structuring element size")
	flags.Float64("distance-threshold", p.DistanceTransformThreshold, "distance transform seed fraction (0-1)")
	flags.Float64("tolerance-low", p.SurfaceAreaToleranceLow, "lower area tolerance")
	flags.Float64("tolerance-high", p.SurfaceAreaToleranceHigh, "upper area tolerance")
	flags.Int("photos-wide", p.PhotosWide, "photos across the widest row of the scan")

	bindings := map[string]string{
		"log.level":                           "log-level",
		"log.format":                          "log-format",
		"output.dir":                          "output",
		"output.preview_dir":                  "preview-dir",
		"output.overwrite":                    "overwrite",
		"jobs":                                "jobs",
		"params.median_blur_kernel":           "median-kernel",
		"params.threshold_value":              "threshold",
		"params.structuring_element_size":     "struct-size",
		"params.distance_transform_threshold": "distance-threshold",
		"params.surface_area_tolerance_low":   "tolerance-low",
		"params.surface_area_tolerance_high":  "tolerance-high",
		"params.photos_wide":                  "photos-wide",
	}
	for key, name := range bindings {
		// An unset flag never shadows env or file values.
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}

	root.AddCommand(newExtractCmd(a), newParamsCmd(a), newVersionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.noColor {
		color.NoColor = true
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger.New(cfg.Log.Format, cfg.LogLevel(), os.Stderr)

	a.logger.Debug("CLI", "configuration loaded", map[string]interface{}{
		"command": cmd.Name(),
		"file":    a.cfgFile,
		"jobs":    cfg.Jobs,
		"output":  cfg.Output.Dir,
	})
	return nil
}
