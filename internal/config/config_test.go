package config

import (
	"flag"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/flashtrap/internal/detect"
)

func TestLoadDefaultsMatchDetection(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	p, err := cfg.Parameters()
	require.NoError(t, err)
	assert.Equal(t, detect.DefaultParameters(), p)
	assert.Equal(t, "copy", cfg.Action)
	assert.Equal(t, StorageJSON, cfg.Storage)
}

func TestEnvThenFlags(t *testing.T) {
	t.Setenv("FLASHTRAP_THRESHOLD", "60")
	t.Setenv("FLASHTRAP_CONNECTIVITY", "8")
	t.Setenv("FLASHTRAP_INPUT_DIR", "/env/input")
	t.Setenv("FLASHTRAP_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Threshold)

	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-threshold", "70", "-distance-cutoff", "20", "-action", "move"}))

	p, err := cfg.Parameters()
	require.NoError(t, err)
	assert.Equal(t, 70, p.Threshold, "flag overrides env")
	assert.Equal(t, 20.0, p.DistanceCutoff)
	assert.Equal(t, detect.Connect8, p.Connectivity, "env value survives when no flag is given")
	assert.Equal(t, "/env/input", cfg.InputDir)
	assert.Equal(t, filepath.Join("/env/input", "_flash"), cfg.Output())
	assert.Equal(t, filepath.Join("/env/input", "_flash", "flashtrap.db"), cfg.SQLiteFile())

	require.NoError(t, cfg.Validate())
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestParametersRejectsInvalid(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Connectivity = 6
	_, err = cfg.Parameters()
	assert.ErrorIs(t, err, detect.ErrInvalidParameters)

	cfg.Connectivity = 4
	cfg.CropTop = -1
	_, err = cfg.Parameters()
	assert.ErrorIs(t, err, detect.ErrInvalidGeometry)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		cfg.InputDir = "/frames"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"no input", func(c *Config) { c.InputDir = "" }, true},
		{"bad action", func(c *Config) { c.Action = "shred" }, true},
		{"bad strategy", func(c *Config) { c.DedupStrategy = "kdtree" }, true},
		{"postgres without url", func(c *Config) { c.Storage = StoragePostgres }, true},
		{"postgres with url", func(c *Config) {
			c.Storage = StoragePostgres
			c.DatabaseURL = "postgres://localhost/flashtrap"
		}, false},
		{"unknown storage", func(c *Config) { c.Storage = "redis" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWorkerCount(t *testing.T) {
	c := &Config{Workers: 3}
	assert.Equal(t, 3, c.WorkerCount())
	c.Workers = 0
	assert.Positive(t, c.WorkerCount())
}
