// Package config provides configuration loading and management for arrview.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Viewer parameters
	Viewer struct {
		// LowPercentile and HighPercentile bound the auto-level window
		LowPercentile  float64 `yaml:"lowPercentile"`
		HighPercentile float64 `yaml:"highPercentile"`

		// Sensitivity scales drag deltas into window/level fractions
		Sensitivity float64 `yaml:"sensitivity"`

		// ColormapSamples is the length of the complex phase colour table
		ColormapSamples int `yaml:"colormapSamples"`

		// Colormap names the scalar colormap (gray, viridis, plasma, inferno, magma)
		Colormap string `yaml:"colormap"`

		// FrameRate is the default animation speed in frames per second
		FrameRate int `yaml:"frameRate"`

		// FrameCacheSize is the number of extracted frames kept per session
		FrameCacheSize int `yaml:"frameCacheSize"`

		// MagnitudeWeighted scales complex hues by normalized magnitude
		MagnitudeWeighted bool `yaml:"magnitudeWeighted"`

		// ExportWorkers is the number of goroutines rendering sequence
		// exports; 0 uses all available CPU cores
		ExportWorkers int `yaml:"exportWorkers"`
	} `yaml:"viewer"`

	// Host parameters
	Host struct {
		// QueueSize bounds the number of pending session commands
		QueueSize int `yaml:"queueSize"`
	} `yaml:"host"`

	// Server parameters
	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"corsOrigins"`
	} `yaml:"server"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogLevel is a zerolog level name; Verbose forces debug
		LogLevel string `yaml:"logLevel"`

		// JPEGQuality is used for .jpg exports
		JPEGQuality int `yaml:"jpegQuality"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Viewer.LowPercentile = 2
	cfg.Viewer.HighPercentile = 98
	cfg.Viewer.Sensitivity = 0.01
	cfg.Viewer.ColormapSamples = 256
	cfg.Viewer.Colormap = "gray"
	cfg.Viewer.FrameRate = 10
	cfg.Viewer.FrameCacheSize = 64
	cfg.Viewer.MagnitudeWeighted = false
	cfg.Viewer.ExportWorkers = 0

	cfg.Host.QueueSize = 16

	cfg.Server.Addr = ":8080"
	cfg.Server.CORSOrigins = []string{"*"}

	cfg.Output.Verbose = false
	cfg.Output.LogLevel = "info"
	cfg.Output.JPEGQuality = 90

	return cfg
}

// Validate checks ranges that the viewer relies on
func (c *Config) Validate() error {
	v := c.Viewer
	if v.LowPercentile < 0 || v.HighPercentile > 100 || v.LowPercentile > v.HighPercentile {
		return fmt.Errorf("invalid percentiles %g/%g: need 0 <= low <= high <= 100", v.LowPercentile, v.HighPercentile)
	}
	if v.Sensitivity <= 0 {
		return fmt.Errorf("sensitivity must be positive, got %g", v.Sensitivity)
	}
	if v.ColormapSamples < 2 {
		return fmt.Errorf("colormapSamples must be at least 2, got %d", v.ColormapSamples)
	}
	if v.FrameRate <= 0 || v.FrameRate > 1000 {
		return fmt.Errorf("frameRate must be in [1, 1000], got %d", v.FrameRate)
	}
	if v.FrameCacheSize <= 0 {
		return fmt.Errorf("frameCacheSize must be positive, got %d", v.FrameCacheSize)
	}
	if v.ExportWorkers < 0 {
		return fmt.Errorf("exportWorkers must not be negative, got %d", v.ExportWorkers)
	}
	if c.Host.QueueSize <= 0 {
		return fmt.Errorf("queueSize must be positive, got %d", c.Host.QueueSize)
	}
	if q := c.Output.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("jpegQuality must be in 1..100, got %d", q)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
