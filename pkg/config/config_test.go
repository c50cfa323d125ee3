package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitonicpixelsort/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "horizontal", cfg.Sort.Direction)
	assert.True(t, cfg.Sort.Ascending)
	assert.Equal(t, float32(0.4), cfg.Sort.ThresholdMin)
	assert.Equal(t, float32(0.6), cfg.Sort.ThresholdMax)
	assert.Equal(t, 2048, cfg.Sort.MaxSize)
	assert.True(t, cfg.Sort.Enabled)
	assert.Positive(t, cfg.Processing.NumCores)
	assert.Equal(t, -1, cfg.Output.ExtractLine)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sort, cfg.Sort)
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := DefaultConfig()
			cfg.Sort.Direction = "vertical"
			cfg.Sort.Ascending = false
			cfg.Sort.ThresholdMin = 0.1
			cfg.Sort.Strategy = "rounds"
			cfg.Output.JPEGQuality = 75
			cfg.Logging.Format = "json"
			require.NoError(t, SaveConfig(cfg, path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)

			dir, err := loaded.Direction()
			require.NoError(t, err)
			assert.Equal(t, models.Vertical, dir)
		})
	}
}

func TestPartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sort:\n  thresholdMax: 0.9\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.9), cfg.Sort.ThresholdMax)
	assert.Equal(t, float32(0.4), cfg.Sort.ThresholdMin)
	assert.Equal(t, "luminance", cfg.Sort.Key)
}

func TestTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelsort.toml")
	content := `
[sort]
direction = "vertical"
key = "lightness"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "vertical", cfg.Sort.Direction)
	assert.Equal(t, "lightness", cfg.Sort.Key)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Sort.Enabled, "unset keys keep their defaults")
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("sort: [unterminated"), 0644))
	_, err := LoadConfig(yamlPath)
	assert.Error(t, err)

	tomlPath := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[sort\nkey ="), 0644))
	_, err = LoadConfig(tomlPath)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"inverted window is allowed", func(c *Config) { c.Sort.ThresholdMin, c.Sort.ThresholdMax = 0.9, 0.1 }, false},
		{"out of range window is allowed", func(c *Config) { c.Sort.ThresholdMax = 3 }, false},
		{"bad direction", func(c *Config) { c.Sort.Direction = "diagonal" }, true},
		{"bad key", func(c *Config) { c.Sort.Key = "hue" }, true},
		{"bad strategy", func(c *Config) { c.Sort.Strategy = "merge" }, true},
		{"bad max size", func(c *Config) { c.Sort.MaxSize = 0 }, true},
		{"bad quality", func(c *Config) { c.Output.JPEGQuality = 101 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
