package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidationError reports a configuration field that fails validation.
// The pipeline refuses to start on any validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds the per-run settings. A Config is assembled once at startup
// and never mutated while a run is in flight.
type Config struct {
	ModelPath      string  `yaml:"model"`
	MetadataPath   string  `yaml:"metadata"`
	InputPath      string  `yaml:"input"`
	OutputDir      string  `yaml:"output"`
	FeatureLayer   string  `yaml:"layer"`     // empty = all configured layers
	TargetClass    int     `yaml:"class"`     // -1 = predicted class
	SelectionParam float64 `yaml:"selection"` // >=1 top-k, <1 mass fraction
	BatchSize      int     `yaml:"batch"`     // 0 = model metadata default
	Workers        int     `yaml:"workers"`   // 0 = autodetect
	Colormap       string  `yaml:"colormap"`
	OverlayAlpha   float64 `yaml:"alpha"`
	OverlayScale   int     `yaml:"scale"`
	QRStamp        bool    `yaml:"qr"`
	PDFPage        int     `yaml:"page"`
	PDFDPI         int     `yaml:"dpi"`
	ShowStats      bool    `yaml:"stats"`
	BuildVersion   string  `yaml:"-"`
}

// Default returns the settings used when no config file and no flags are given.
func Default() *Config {
	return &Config{
		OutputDir:      "output",
		TargetClass:    -1,
		SelectionParam: 0.5,
		Colormap:       "jet",
		OverlayAlpha:   0.45,
		OverlayScale:   2,
		PDFPage:        1,
		PDFDPI:         150,
	}
}

// Load reads a YAML run config from path and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the run settings that do not depend on the model metadata.
func (c *Config) Validate() error {
	if c.SelectionParam <= 0 {
		return &ValidationError{Field: "selection", Reason: "must be positive"}
	}
	if c.BatchSize < 0 {
		return &ValidationError{Field: "batch", Reason: "must not be negative"}
	}
	if c.Workers < 0 {
		return &ValidationError{Field: "workers", Reason: "must not be negative"}
	}
	if c.OverlayAlpha < 0 || c.OverlayAlpha > 1 {
		return &ValidationError{Field: "alpha", Reason: "must be in [0, 1]"}
	}
	if c.OverlayScale < 1 {
		return &ValidationError{Field: "scale", Reason: "must be at least 1"}
	}
	if c.PDFPage < 1 {
		return &ValidationError{Field: "page", Reason: "pages are numbered from 1"}
	}
	if c.PDFDPI < 36 || c.PDFDPI > 600 {
		return &ValidationError{Field: "dpi", Reason: "must be in [36, 600]"}
	}
	return nil
}
