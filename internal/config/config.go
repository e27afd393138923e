// Package config loads imaging settings with viper from an optional YAML
// file, RAWIMAGE_* environment variables and built-in defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-rawimage/internal/device"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// Config holds settings for imaging runs
type Config struct {
	LogFile       string             `mapstructure:"log_file"`
	MaxAttempts   int                `mapstructure:"max_attempts"`
	SyncLog       bool               `mapstructure:"sync_log"`
	SinkBuffer    int                `mapstructure:"sink_buffer"`
	DevicePattern string             `mapstructure:"device_pattern"`
	Progress      string             `mapstructure:"progress"`
	Emulate       device.FixtureSpec `mapstructure:"emulate"`
}

// Progress modes
const (
	ProgressBar     = "bar"
	ProgressMarkers = "markers"
	ProgressNone    = "none"
)

// New returns a viper instance with search paths, env binding and defaults
// set. The caller may bind flags onto it before calling Load.
func New(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("rawimage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.rawimage")
		v.AddConfigPath("/etc/rawimage")
	}

	// Set defaults
	v.SetDefault("log_file", "rawhdd.log")
	v.SetDefault("max_attempts", types.DefaultMaxAttempts)
	v.SetDefault("sync_log", true)
	v.SetDefault("sink_buffer", 0)
	v.SetDefault("device_pattern", device.DefaultPattern)
	v.SetDefault("progress", ProgressBar)
	v.SetDefault("emulate.cylinders", 20)
	v.SetDefault("emulate.heads", 4)
	v.SetDefault("emulate.sectors", 17)

	// Allow environment variables
	v.SetEnvPrefix("RAWIMAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file if one exists and decodes the merged settings.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.SinkBuffer < 0 {
		return fmt.Errorf("sink_buffer must not be negative, got %d", c.SinkBuffer)
	}
	switch c.Progress {
	case ProgressBar, ProgressMarkers, ProgressNone:
	default:
		return fmt.Errorf("progress must be %s, %s or %s, got %q", ProgressBar, ProgressMarkers, ProgressNone, c.Progress)
	}
	if c.LogFile == "" {
		return fmt.Errorf("log_file must not be empty")
	}
	return nil
}
