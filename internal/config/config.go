package config

import (
	"flag"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/bdougie/flashtrap/internal/detect"
	"github.com/bdougie/flashtrap/internal/materialize"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "FLASHTRAP_"

// Storage backends
const (
	StorageNone     = "none"
	StorageJSON     = "json"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds the detect command's settings, read from the environment.
type Config struct {
	InputDir  string `env:"INPUT_DIR"`
	OutputDir string `env:"OUTPUT_DIR"`
	Action    string `env:"ACTION"    envDefault:"copy"`
	LinkOnly  bool   `env:"LINK_ONLY" envDefault:"false"`

	Workers       int    `env:"WORKERS"        envDefault:"0"`
	DedupStrategy string `env:"DEDUP_STRATEGY" envDefault:"auto"`

	CropTop        int     `env:"CROP_TOP"        envDefault:"16"`
	CropBottom     int     `env:"CROP_BOTTOM"     envDefault:"144"`
	CropLeft       int     `env:"CROP_LEFT"       envDefault:"16"`
	CropRight      int     `env:"CROP_RIGHT"      envDefault:"16"`
	GaussianRadius float64 `env:"GAUSSIAN_RADIUS" envDefault:"2"`
	Threshold      int     `env:"THRESHOLD"       envDefault:"48"`
	MinBlobSize    int     `env:"MIN_BLOB_SIZE"   envDefault:"8"`
	MaxBlobCount   int     `env:"MAX_BLOB_COUNT"  envDefault:"5"`
	DistanceCutoff float64 `env:"DISTANCE_CUTOFF" envDefault:"16"`
	Connectivity   int     `env:"CONNECTIVITY"    envDefault:"4"`

	Storage      string `env:"STORAGE"        envDefault:"json"`
	DatabaseURL  string `env:"DATABASE_URL"`
	DBInitSchema bool   `env:"DB_INIT_SCHEMA" envDefault:"false"`
	SQLitePath   string `env:"SQLITE_PATH"`
	MetricsAddr  string `env:"METRICS_ADDR"`
	LogLevel     string `env:"LOG_LEVEL"      envDefault:"info"`
	NoColor      bool   `env:"NO_COLOR"       envDefault:"false"`

	Verify      bool   `env:"VERIFY"          envDefault:"false"`
	OllamaURL   string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost"`
	OllamaPort  int    `env:"OLLAMA_PORT"     envDefault:"11434"`
	OllamaModel string `env:"OLLAMA_MODEL"    envDefault:"llama3.2-vision:11b"`
}

// Load reads the configuration from FLASHTRAP_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RegisterFlags binds command line flags to cfg. Call it after Load so the
// environment supplies the flag defaults and flags win.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.InputDir, "input", c.InputDir, "directory of frames (files or symlinks)")
	fs.StringVar(&c.OutputDir, "output", c.OutputDir, "destination for valid frames (default <input>/_flash)")
	fs.StringVar(&c.Action, "action", c.Action, "copy, move or link")
	fs.BoolVar(&c.LinkOnly, "symlinks", c.LinkOnly, "place symbolic links instead of file contents")
	fs.IntVar(&c.Workers, "workers", c.Workers, "detection workers (0 = number of CPUs)")
	fs.StringVar(&c.DedupStrategy, "dedup", c.DedupStrategy, "dedup strategy: auto, pairwise or grid")

	fs.IntVar(&c.CropTop, "crop-top", c.CropTop, "rows removed from the top")
	fs.IntVar(&c.CropBottom, "crop-bottom", c.CropBottom, "rows removed from the bottom (info banner)")
	fs.IntVar(&c.CropLeft, "crop-left", c.CropLeft, "columns removed from the left")
	fs.IntVar(&c.CropRight, "crop-right", c.CropRight, "columns removed from the right")
	fs.Float64Var(&c.GaussianRadius, "gaussian-radius", c.GaussianRadius, "blur sigma in pixels")
	fs.IntVar(&c.Threshold, "threshold", c.Threshold, "binarization threshold (0-255)")
	fs.IntVar(&c.MinBlobSize, "min-blob-size", c.MinBlobSize, "smallest blob kept, in pixels")
	fs.IntVar(&c.MaxBlobCount, "max-blob-count", c.MaxBlobCount, "frames with more blobs are too noisy")
	fs.Float64Var(&c.DistanceCutoff, "distance-cutoff", c.DistanceCutoff, "candidates closer than this cancel out")
	fs.IntVar(&c.Connectivity, "connectivity", c.Connectivity, "pixel connectivity for blobs: 4 or 8")

	fs.StringVar(&c.Storage, "storage", c.Storage, "result storage: none, json, sqlite or postgres")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "postgres connection URL")
	fs.BoolVar(&c.DBInitSchema, "init-schema", c.DBInitSchema, "create the postgres schema before the run")
	fs.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "sqlite database file (default <output>/flashtrap.db)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve prometheus metrics on this address")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&c.NoColor, "no-color", c.NoColor, "disable colored log output")

	fs.BoolVar(&c.Verify, "verify", c.Verify, "ask a vision model to confirm valid frames")
	fs.StringVar(&c.OllamaURL, "ollama-url", c.OllamaURL, "ollama base URL")
	fs.IntVar(&c.OllamaPort, "ollama-port", c.OllamaPort, "ollama port")
	fs.StringVar(&c.OllamaModel, "ollama-model", c.OllamaModel, "ollama vision model")
}

// Parameters builds and validates the detection parameters.
func (c *Config) Parameters() (detect.Parameters, error) {
	p := detect.Parameters{
		CropTop:        c.CropTop,
		CropBottom:     c.CropBottom,
		CropLeft:       c.CropLeft,
		CropRight:      c.CropRight,
		GaussianRadius: c.GaussianRadius,
		Threshold:      c.Threshold,
		MinBlobSize:    c.MinBlobSize,
		MaxBlobCount:   c.MaxBlobCount,
		DistanceCutoff: c.DistanceCutoff,
		Connectivity:   detect.Connectivity(c.Connectivity),
	}
	if err := p.Validate(); err != nil {
		return detect.Parameters{}, err
	}
	return p, nil
}

// Validate checks the settings that do not belong to detection.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input directory is required")
	}
	if _, err := materialize.ParseAction(c.Action); err != nil {
		return err
	}
	if _, err := detect.ParseStrategy(c.DedupStrategy); err != nil {
		return err
	}
	switch c.Storage {
	case StorageNone, StorageJSON, StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("postgres storage needs a database URL")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Output returns the destination directory, defaulting to <input>/_flash.
func (c *Config) Output() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.InputDir, materialize.DefaultDirName)
}

// SQLiteFile returns the sqlite database path, defaulting to <output>/flashtrap.db.
func (c *Config) SQLiteFile() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.Output(), "flashtrap.db")
}

// WorkerCount resolves Workers, using the CPU count when unset.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
