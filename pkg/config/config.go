package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jpfielding/jxl.go/pkg/jxl"
	"gopkg.in/yaml.v3"
)

// Config is a jxlctl preset
type Config struct {
	Encode  Encode  `yaml:"encode"`
	Decode  Decode  `yaml:"decode"`
	Runner  Runner  `yaml:"runner"`
	Memory  Memory  `yaml:"memory"`
	Logging Logging `yaml:"logging"`
}

// Encode holds the frame settings of the encoder
type Encode struct {
	Lossless bool `yaml:"lossless"`
	// Speed is a tier name (lightning .. tortoise) or effort number
	Speed    string  `yaml:"speed"`
	Distance float32 `yaml:"distance"`
	// Quality overrides Distance when set, 0 to 100
	Quality       *float32 `yaml:"quality,omitempty"`
	Color         string   `yaml:"color,omitempty"`
	Container     bool     `yaml:"container"`
	DecodingSpeed int      `yaml:"decoding_speed"`
}

// Decode holds the output format of the decoder
type Decode struct {
	Channels        int    `yaml:"channels"`
	DataType        string `yaml:"data_type"`
	Endianness      string `yaml:"endianness"`
	Align           int    `yaml:"align"`
	KeepOrientation bool   `yaml:"keep_orientation"`
	Unpremultiply   bool   `yaml:"unpremultiply"`
}

// Runner selects how libjxl parallelizes: none, pool or threads
type Runner struct {
	Kind    string `yaml:"kind"`
	Workers int    `yaml:"workers"`
}

// Memory optionally caps what libjxl may hold, 0 disables tracking
type Memory struct {
	LimitBytes uint64 `yaml:"limit_bytes"`
}

// Logging contains logging configuration
type Logging struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns libjxl's defaults with a goroutine pool runner
func DefaultConfig() *Config {
	s := jxl.DefaultEncoderSettings()
	return &Config{
		Encode: Encode{
			Speed:    s.Speed.String(),
			Distance: s.Distance,
		},
		Decode: Decode{
			Channels:   4,
			DataType:   jxl.Uint8.String(),
			Endianness: jxl.NativeEndian.String(),
		},
		Runner: Runner{Kind: "pool"},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig loads configuration from the specified path on top of DefaultConfig
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return config, nil
}

// SaveConfig writes the configuration to the specified path
func SaveConfig(config *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate resolves every named option once so errors surface at load time
func (c *Config) Validate() error {
	if _, err := c.EncoderSettings(); err != nil {
		return err
	}
	if _, err := c.PixelFormat(); err != nil {
		return err
	}
	switch c.Runner.Kind {
	case "", "none", "pool", "threads":
	default:
		return &jxl.ConfigError{Field: "runner", Value: c.Runner.Kind, Err: jxl.ErrConfiguration}
	}
	return nil
}

// EncoderSettings converts the encode section
func (c *Config) EncoderSettings() (jxl.EncoderSettings, error) {
	s := jxl.DefaultEncoderSettings()
	speed, err := jxl.ParseSpeed(c.Encode.Speed)
	if err != nil {
		return s, err
	}
	s.Lossless = c.Encode.Lossless
	s.Speed = speed
	s.Distance = c.Encode.Distance
	s.UseContainer = c.Encode.Container
	s.DecodingSpeed = c.Encode.DecodingSpeed
	if c.Encode.Color != "" {
		ce, err := jxl.ParseColorEncoding(c.Encode.Color)
		if err != nil {
			return s, err
		}
		s.Color = &ce
	}
	return s, s.Validate()
}

// PixelFormat converts the decode section
func (c *Config) PixelFormat() (jxl.PixelFormat, error) {
	dt, err := jxl.ParseDataType(c.Decode.DataType)
	if err != nil {
		return jxl.PixelFormat{}, err
	}
	end, err := jxl.ParseEndianness(c.Decode.Endianness)
	if err != nil {
		return jxl.PixelFormat{}, err
	}
	f := jxl.PixelFormat{Channels: c.Decode.Channels, Type: dt, Endianness: end, Align: c.Decode.Align}
	return f, f.Validate()
}
