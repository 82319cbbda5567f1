package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bdougie/flashtrap/internal/extractor"
	"github.com/bdougie/flashtrap/internal/imstats"
	"github.com/bdougie/flashtrap/internal/models"
	"github.com/bdougie/flashtrap/internal/organize"
	"github.com/bdougie/flashtrap/internal/report"
	"github.com/bdougie/flashtrap/internal/storage"
	"github.com/bdougie/flashtrap/internal/synth"
)

// commonFlags registers the logging flags shared by the helper commands.
func commonFlags(fs *flag.FlagSet) (*string, *bool) {
	level := fs.String("log-level", "info", "debug, info, warn or error")
	noColor := fs.Bool("no-color", false, "disable colored log output")
	return level, noColor
}

func loggerFromFlags(level string, noColor bool) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return newLogger(l, noColor), nil
}

func handleStats(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	input := fs.String("input", "", "folder of frames or of date folders (required)")
	output := fs.String("output", "", "destination for the sorted frames (required)")
	rows := fs.Int("rows", imstats.DefaultRows, "rows measured from the top of each frame")
	workers := fs.Int("workers", 0, "parallel decoders (0 = number of CPUs)")
	link := fs.Bool("symlinks", false, "place symbolic links instead of copies")
	th := imstats.DefaultThresholds()
	fs.Float64Var(&th.MinMaxBrightness, "min-max-brightness", th.MinMaxBrightness, "frames darker than this everywhere are null")
	fs.Float64Var(&th.MaxAvgBrightness, "max-avg-brightness", th.MaxAvgBrightness, "mean red below this may be dark")
	fs.Float64Var(&th.MaxStdOverMean, "max-std-over-mean", th.MaxStdOverMean, "std/mean below this may be dark")
	level, noColor := commonFlags(fs)
	fs.Parse(args)

	if *input == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -input and -output are required")
		fs.Usage()
		return 1
	}
	logger, err := loggerFromFlags(*level, *noColor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	sources, err := imstats.Find(*input)
	if err != nil {
		logger.Error("Failed to list frames", "input", *input, "error", err)
		return 1
	}
	if len(sources) == 0 {
		logger.Warn("No frames found", "input", *input)
		return 0
	}

	start := time.Now()
	logger.Info("Started processing", "frames", len(sources))
	stats, err := imstats.ComputeAll(ctx, sources, *rows, *workers, logger)
	if err != nil {
		logger.Error("Statistics failed", "error", err)
		return 1
	}
	logger.Info("Finished processing", "frames", len(stats), "duration", time.Since(start).Round(time.Millisecond))

	if err := os.MkdirAll(*output, 0755); err != nil {
		logger.Error("Failed to create output", "error", err)
		return 1
	}
	if err := writeJSON(filepath.Join(*output, "image_stats.json"), stats); err != nil {
		logger.Error("Failed to save statistics", "error", err)
		return 1
	}

	counts, err := imstats.SortInto(stats, imstats.SortOptions{Dest: *output, Thresholds: th, Link: *link}, logger)
	if err != nil {
		logger.Error("Sorting failed", "error", err)
		return 1
	}
	for _, c := range imstats.SortedCategories(counts) {
		logger.Info("Category", "name", c, "frames", counts[c])
	}
	return 0
}

func handleOrganize(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("organize", flag.ExitOnError)
	var opts organize.Options
	fs.StringVar(&opts.Source, "dcim", "", "DCIM folder holding the *MEDIA folders (required)")
	fs.StringVar(&opts.Dest, "output", "", "destination folder, typically /data/<site> (required)")
	fs.BoolVar(&opts.Link, "symlinks", false, "place symbolic links to the card instead of copies")
	fs.BoolVar(&opts.Flat, "flat", false, "put every photo in one folder instead of date folders")
	level, noColor := commonFlags(fs)
	fs.Parse(args)

	if opts.Source == "" || opts.Dest == "" {
		fmt.Fprintln(os.Stderr, "Error: -dcim and -output are required")
		fs.Usage()
		return 1
	}
	logger, err := loggerFromFlags(*level, *noColor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	sum, err := organize.Organize(ctx, opts, logger)
	if err != nil {
		logger.Error("Organize failed", "error", err)
		return 1
	}
	logger.Info("Organize finished",
		"placed", sum.Placed,
		"no_exif", sum.NoExif,
		"existing", sum.Existing,
		"failed", sum.Failed)
	return 0
}

func handleReport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	input := fs.String("input", "", "folder of flash frames, usually <frames>/_flash")
	output := fs.String("output", "", "workbook path (.xlsx)")
	startDate := fs.String("start", "", "first day of the season (YYYY-MM-DD), pads days without photos")
	endDate := fs.String("end", "", "last day of the season (YYYY-MM-DD)")
	hotspots := fs.String("hotspots", "", "write a candidate hotspot chart (.html)")
	results := fs.String("results", "", "JSON results of a run (default <input>/flash_results.json)")
	sqlitePath := fs.String("sqlite-path", "", "read the run from this SQLite database")
	databaseURL := fs.String("database-url", "", "read the run from postgres")
	runID := fs.String("run", "", "run ID (default: latest run in SQLite)")
	near := fs.String("near", "", "with -database-url, list stored candidates nearest to x,y")
	limit := fs.Int("limit", 10, "number of -near results")
	level, noColor := commonFlags(fs)
	fs.Parse(args)

	logger, err := loggerFromFlags(*level, *noColor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *near != "" {
		return searchNear(ctx, *databaseURL, *near, *limit, logger)
	}
	if *input == "" {
		fmt.Fprintln(os.Stderr, "Error: -input is required")
		fs.Usage()
		return 1
	}

	if *output != "" {
		start, err := parseDate(*startDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: -start: %v\n", err)
			return 1
		}
		end, err := parseDate(*endDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: -end: %v\n", err)
			return 1
		}

		records, err := report.Collect(*input, logger)
		if err != nil {
			logger.Error("Failed to read frames", "error", err)
			return 1
		}
		counts := report.Counts(records, start, end)
		if err := report.WriteWorkbook(*output, records, counts); err != nil {
			logger.Error("Failed to write workbook", "error", err)
			return 1
		}
		logger.Info("Written report", "path", *output, "photos", len(records), "days", len(counts))
	}

	if *hotspots != "" {
		id, stored, err := loadCandidates(ctx, *input, *results, *sqlitePath, *databaseURL, *runID)
		if err != nil {
			logger.Error("Failed to load candidates", "error", err)
			return 1
		}
		f, err := os.Create(*hotspots)
		if err != nil {
			logger.Error("Failed to create chart", "error", err)
			return 1
		}
		defer f.Close()

		kept, removed := report.SplitCandidates(stored)
		if err := report.WriteHotspotChart(f, id, kept, removed); err != nil {
			logger.Error("Failed to render chart", "error", err)
			return 1
		}
		logger.Info("Written hotspot chart", "path", *hotspots, "kept", len(kept), "removed", len(removed))
	}
	return 0
}

func loadCandidates(ctx context.Context, input, results, sqlitePath, databaseURL, runID string) (string, []storage.StoredCandidate, error) {
	switch {
	case sqlitePath != "":
		s, err := storage.OpenSQLite(ctx, sqlitePath)
		if err != nil {
			return "", nil, err
		}
		defer s.Close()
		if runID == "" {
			latest, err := s.LatestRun(ctx)
			if err != nil {
				return "", nil, err
			}
			runID = latest.ID
		}
		stored, err := s.RunCandidates(ctx, runID)
		return runID, stored, err

	case databaseURL != "":
		if runID == "" {
			return "", nil, fmt.Errorf("-run is required with -database-url")
		}
		s, err := storage.NewPostgresStorage(ctx, storage.PostgresConfig{URL: databaseURL}, models.RunInfo{})
		if err != nil {
			return "", nil, err
		}
		defer s.Close()
		stored, err := s.RunCandidates(ctx, runID)
		return runID, stored, err

	default:
		if results == "" {
			results = filepath.Join(input, storage.ResultsFileName)
		}
		frames, err := storage.ReadResults(results)
		if err != nil {
			return "", nil, err
		}
		id := runID
		if id == "" && len(frames) > 0 {
			id = frames[0].RunID
		}
		return id, storage.CandidatesOf(frames), nil
	}
}

func searchNear(ctx context.Context, databaseURL, near string, limit int, logger *slog.Logger) int {
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: -near needs -database-url")
		return 1
	}
	x, y, err := parsePoint(near)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: -near: %v\n", err)
		return 1
	}

	s, err := storage.NewPostgresStorage(ctx, storage.PostgresConfig{URL: databaseURL}, models.RunInfo{})
	if err != nil {
		logger.Error("Failed to connect", "error", err)
		return 1
	}
	defer s.Close()

	hits, err := s.SearchHotspots(ctx, x, y, limit)
	if err != nil {
		logger.Error("Search failed", "error", err)
		return 1
	}
	for _, h := range hits {
		fmt.Printf("%s\t%s\t%d,%d\t%.1f\n", h.RunID, h.FrameID, h.X, h.Y, h.Distance)
	}
	return 0
}

func handleExtract(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	video := fs.String("video", "", "path to the video (required)")
	output := fs.String("output", "output_frames", "folder receiving <video name>/frame_NNNN.jpg")
	interval := fs.Int("interval", 1, "seconds between extracted frames")
	level, noColor := commonFlags(fs)
	fs.Parse(args)

	if *video == "" {
		fmt.Fprintln(os.Stderr, "Error: -video is required")
		fs.Usage()
		return 1
	}
	logger, err := loggerFromFlags(*level, *noColor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	dir, err := extractor.ExtractFrames(ctx, logger, *video, *output, *interval)
	if err != nil {
		logger.Error("Extraction failed", "error", err)
		return 1
	}
	fmt.Println(dir)
	return 0
}

func handleSynth(args []string) int {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	cfg := synth.DefaultSweepConfig()
	output := fs.String("output", "", "folder for the generated frames (required)")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "frame width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "frame height")
	fs.IntVar(&cfg.Step, "step", cfg.Step, "distance between spot positions")
	fs.Float64Var(&cfg.Sigma, "sigma", cfg.Sigma, "spot standard deviation")
	fs.Float64Var(&cfg.Peak, "peak", cfg.Peak, "spot peak brightness")
	fill := fs.Int("fill", int(cfg.Fill), "background gray level")
	fs.Parse(args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -output is required")
		fs.Usage()
		return 1
	}
	if *fill < 0 || *fill > 255 {
		fmt.Fprintf(os.Stderr, "Error: -fill must be in 0..255, got %d\n", *fill)
		return 1
	}
	cfg.Fill = uint8(*fill)

	paths, err := synth.WriteSweep(*output, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %d frames to %s\n", len(paths), *output)
	return 0
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parsePoint(s string) (int, int, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("want x,y, got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
