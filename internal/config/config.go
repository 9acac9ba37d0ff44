// Package config handles gmdtool configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by Validate errors.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all gmdtool settings.
type Config struct {
	Decode  DecodeConfig  `yaml:"decode"`
	Survey  SurveyConfig  `yaml:"survey"`
	Logging LoggingConfig `yaml:"logging"`
}

// DecodeConfig holds vertex layout decoding settings.
type DecodeConfig struct {
	Checked bool `yaml:"checked"` // Verify every flag bit is interpreted
	Workers int  `yaml:"workers"` // Parallel decoders for batch runs
}

// SurveyConfig holds shader survey settings.
type SurveyConfig struct {
	CheckStride bool   `yaml:"check_stride"` // Compare decoded stride with recorded bytes per vertex
	ReportFile  string `yaml:"report_file"`  // YAML report destination, empty = none
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Decode: DecodeConfig{
			Checked: true,
			Workers: 4,
		},
		Survey: SurveyConfig{
			CheckStride: true,
			ReportFile:  "",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks values that cannot be used as given.
func (c *Config) Validate() error {
	if c.Decode.Workers < 1 {
		return fmt.Errorf("%w: decode.workers must be at least 1, got %d", ErrInvalidConfig, c.Decode.Workers)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
