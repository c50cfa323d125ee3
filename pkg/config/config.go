// Package config provides configuration loading and management for pixelsort.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"bitonicpixelsort/internal/models"
	"bitonicpixelsort/pkg/bitonic"
	"bitonicpixelsort/pkg/sortkey"
)

// Config represents the application configuration
type Config struct {
	// Sort parameters of the effect itself
	Sort struct {
		// Direction is "horizontal" (sort rows) or "vertical" (sort columns)
		Direction string `yaml:"direction" toml:"direction"`

		// Ascending orders every run from low to high key
		Ascending bool `yaml:"ascending" toml:"ascending"`

		// ThresholdMin and ThresholdMax bound the keys of sortable pixels
		ThresholdMin float32 `yaml:"thresholdMin" toml:"thresholdMin"`
		ThresholdMax float32 `yaml:"thresholdMax" toml:"thresholdMax"`

		// Key names the function deriving a pixel's sort key
		Key string `yaml:"key" toml:"key"`

		// Strategy is "single" (one worker per line) or "rounds" (barrier per round)
		Strategy string `yaml:"strategy" toml:"strategy"`

		// MaxSize is the exclusive cap on the sortable dimension
		MaxSize int `yaml:"maxSize" toml:"maxSize"`

		// Enabled turns the effect off without removing it, output equals input
		Enabled bool `yaml:"enabled" toml:"enabled"`
	} `yaml:"sort" toml:"sort"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores" toml:"numCores"`

		// FitToMaxSize downscales images whose sortable dimension reaches MaxSize
		FitToMaxSize bool `yaml:"fitToMaxSize" toml:"fitToMaxSize"`
	} `yaml:"processing" toml:"processing"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save the source and run map next to the result
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults" toml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir" toml:"intermediaryDir"`

		// ExtractLine saves the pixels of this line before and after sorting
		// as an intermediary stage; negative disables it
		ExtractLine int `yaml:"extractLine" toml:"extractLine"`

		// JPEGQuality is used when an output path ends in .jpg or .jpeg
		JPEGQuality int `yaml:"jpegQuality" toml:"jpegQuality"`
	} `yaml:"output" toml:"output"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level" toml:"level"`

		// Format is console or json
		Format string `yaml:"format" toml:"format"`
	} `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Sort.Direction = models.Horizontal.String()
	cfg.Sort.Ascending = true
	cfg.Sort.ThresholdMin = 0.4
	cfg.Sort.ThresholdMax = 0.6
	cfg.Sort.Key = sortkey.Default
	cfg.Sort.Strategy = bitonic.StrategySingle.String()
	cfg.Sort.MaxSize = 2048
	cfg.Sort.Enabled = true

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.FitToMaxSize = false

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.ExtractLine = -1
	cfg.Output.JPEGQuality = 90

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

// ParseDirection maps a configuration name onto a scan direction
func ParseDirection(name string) (models.Direction, error) {
	switch strings.ToLower(name) {
	case "", "horizontal", "rows", "h":
		return models.Horizontal, nil
	case "vertical", "columns", "v":
		return models.Vertical, nil
	default:
		return 0, errors.Errorf("invalid direction: %s (must be horizontal or vertical)", name)
	}
}

// Direction returns the parsed scan direction
func (c *Config) Direction() (models.Direction, error) {
	return ParseDirection(c.Sort.Direction)
}

// Validate checks the values a run cannot start with. An inverted or
// out-of-range threshold window is accepted: it simply sorts nothing.
func (c *Config) Validate() error {
	if _, err := c.Direction(); err != nil {
		return err
	}
	if _, err := sortkey.Lookup(c.Sort.Key); err != nil {
		return err
	}
	if _, err := bitonic.ParseStrategy(c.Sort.Strategy); err != nil {
		return err
	}
	if c.Sort.MaxSize <= 1 {
		return errors.Errorf("maxSize must be greater than 1, got %d", c.Sort.MaxSize)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return errors.Errorf("jpegQuality must be within [1, 100], got %d", c.Output.JPEGQuality)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by extension.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.Wrap(err, "error parsing config file")
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file, chosen by extension
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return errors.Wrap(err, "error marshaling config")
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
