// Package config loads extraction parameters and host settings from an
// optional YAML file, POLAROID_* environment variables and bound CLI flags.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/models"
)

const EnvPrefix = "POLAROID"

type Config struct {
	Params models.ExtractionParams `mapstructure:"params"`
	Log    LogConfig               `mapstructure:"log"`
	Output OutputConfig            `mapstructure:"output"`
	Jobs   int                     `mapstructure:"jobs"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	PreviewDir string `mapstructure:"preview_dir"` // empty disables previews
	Overwrite  bool   `mapstructure:"overwrite"`
}

// New returns a viper instance with every key defaulted and environment
// overrides enabled, e.g. POLAROID_PARAMS_THRESHOLD_VALUE.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	p := models.DefaultParams()
	v.SetDefault("params.median_blur_kernel", p.MedianBlurKernel)
	v.SetDefault("params.threshold_value", p.ThresholdValue)
	v.SetDefault("params.structuring_element_size", p.StructuringElementSize)
	v.SetDefault("params.distance_transform_threshold", p.DistanceTransformThreshold)
	v.SetDefault("params.surface_area_tolerance_low", p.SurfaceAreaToleranceLow)
	v.SetDefault("params.surface_area_tolerance_high", p.SurfaceAreaToleranceHigh)
	v.SetDefault("params.photos_wide", p.PhotosWide)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("output.dir", "out")
	v.SetDefault("output.preview_dir", "")
	v.SetDefault("output.overwrite", false)

	v.SetDefault("jobs", runtime.GOMAXPROCS(0))
}

// Load reads file when it is non-empty, then decodes and validates the
// merged settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", c.Log.Format)
	}
	if c.Output.Dir == "" {
		return errors.New("output dir must not be empty")
	}
	return nil
}

// LogLevel parses the configured level, falling back to info.
func (c Config) LogLevel() logger.LogLevel {
	return logger.ParseLevel(c.Log.Level)
}
