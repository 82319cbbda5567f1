package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bdougie/flashtrap/internal/analyzer"
	"github.com/bdougie/flashtrap/internal/config"
	"github.com/bdougie/flashtrap/internal/detect"
	"github.com/bdougie/flashtrap/internal/materialize"
	"github.com/bdougie/flashtrap/internal/metrics"
	"github.com/bdougie/flashtrap/internal/models"
	"github.com/bdougie/flashtrap/internal/storage"
)

func handleDetect(ctx context.Context, args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read environment: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.Parse(args)
	if cfg.InputDir == "" && fs.NArg() > 0 {
		cfg.InputDir = fs.Arg(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return 1
	}
	params, err := cfg.Parameters()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	level, _ := cfg.SlogLevel()
	logger := newLogger(level, cfg.NoColor)

	action, _ := materialize.ParseAction(cfg.Action)
	strategy, _ := detect.ParseStrategy(cfg.DedupStrategy)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		logger.Error("Failed to encode parameters", "error", err)
		return 1
	}
	run := models.RunInfo{
		ID:         uuid.NewString(),
		InputDir:   cfg.InputDir,
		StartedAt:  time.Now().UTC(),
		Parameters: paramsJSON,
	}

	mat, err := materialize.New(materialize.Options{
		Dest:     cfg.Output(),
		Action:   action,
		LinkOnly: cfg.LinkOnly,
	}, logger)
	if err != nil {
		logger.Error("Failed to prepare output folder", "error", err)
		return 1
	}

	store, closeStore, err := openStorage(ctx, cfg, run, logger)
	if err != nil {
		logger.Error("Failed to open storage", "backend", cfg.Storage, "error", err)
		return 1
	}
	defer closeStore()

	if cfg.MetricsAddr != "" {
		metrics.StartMetricsServer(ctx, cfg.MetricsAddr, logger)
	}

	opts := []analyzer.ProcessorOption{analyzer.WithMaterializer(mat)}
	if cfg.Verify {
		visionAgent, err := analyzer.NewAgent(ctx, logger, analyzer.AgentOptions{
			BaseURL: cfg.OllamaURL,
			Port:    cfg.OllamaPort,
			Model:   cfg.OllamaModel,
		})
		if err != nil {
			logger.Error("Failed to initialize vision agent", "error", err)
			return 1
		}
		opts = append(opts, analyzer.WithVerifier(analyzer.NewAgentVerifier(visionAgent, logger)))
	}

	processor, err := analyzer.NewProcessor(analyzer.Options{
		Params:   params,
		Workers:  cfg.WorkerCount(),
		Strategy: strategy,
		RunID:    run.ID,
	}, store, logger, opts...)
	if err != nil {
		logger.Error("Invalid detection parameters", "error", err)
		return 1
	}

	logger.Info("Starting flash detection",
		"run", run.ID,
		"input", cfg.InputDir,
		"output", cfg.Output(),
		"action", action,
		"storage", cfg.Storage)

	result, err := processor.Run(ctx, cfg.InputDir)
	if err != nil {
		if errors.Is(err, detect.ErrInvalidGeometry) || errors.Is(err, detect.ErrInvalidParameters) {
			logger.Error("Invalid configuration", "error", err)
		} else {
			logger.Error("Detection failed", "error", err)
		}
		return 1
	}

	for _, id := range result.Verdicts.Sorted() {
		fmt.Println(id)
	}
	return 0
}

// openStorage builds the configured result backend. The returned func
// finishes the run record and releases the backend.
func openStorage(ctx context.Context, cfg *config.Config, run models.RunInfo, logger *slog.Logger) (storage.Storage, func(), error) {
	switch cfg.Storage {
	case config.StorageNone:
		return storage.Nop{}, func() {}, nil

	case config.StorageSQLite:
		path := cfg.SQLiteFile()
		s, err := storage.NewSQLiteStorage(ctx, path, run)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Recording run in SQLite", "path", path)
		return s, func() {
			if err := s.FinishRun(context.Background()); err != nil {
				logger.Warn("Failed to finish run", "error", err)
			}
			s.Close()
		}, nil

	case config.StoragePostgres:
		pgCfg := storage.PostgresConfig{URL: cfg.DatabaseURL}
		if cfg.DBInitSchema {
			if err := storage.InitSchema(ctx, pgCfg); err != nil {
				return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
			}
		}
		s, err := storage.NewPostgresStorage(ctx, pgCfg, run)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.FinishRun(context.Background()); err != nil {
				logger.Warn("Failed to finish run", "error", err)
			}
			s.Close()
		}, nil

	default:
		s := storage.NewStorage(cfg.Output())
		logger.Info("Writing results", "path", s.Path())
		return s, func() {}, nil
	}
}
