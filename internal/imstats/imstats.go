// Package imstats computes per-frame brightness statistics and sorts a
// season of frames into day, dusk, dark and empty folders before detection.
package imstats

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/bdougie/flashtrap/internal/extractor"
	"github.com/bdougie/flashtrap/internal/materialize"
	"github.com/bdougie/flashtrap/internal/models"
)

// DefaultRows is how many rows from the top are measured. The rest of a
// 1440 row frame is the info banner.
const DefaultRows = 1280

// Source is one frame found by Find. Folder is usually a date folder.
type Source struct {
	Folder string `json:"folder"`
	Name   string `json:"name"`
}

// Path returns the full file path
func (s Source) Path() string {
	return filepath.Join(s.Folder, s.Name)
}

// Stats are red channel statistics over the measured rows of one frame.
type Stats struct {
	Source
	Grayscale bool    `json:"grayscale"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	Max       float64 `json:"max"`
	Error     string  `json:"error,omitempty"`
}

// Ratio is std/mean, or 0 for a black frame.
func (s Stats) Ratio() float64 {
	if s.Mean <= 0 {
		return 0
	}
	return s.Std / s.Mean
}

// Compute measures img over its first rows rows (all rows when the frame is
// shorter). Grayscale is set when red equals green at every pixel, which is
// how the cameras' infrared night mode shows up.
func Compute(img image.Image, rows int) Stats {
	b := img.Bounds()
	h := b.Dy()
	if rows > 0 && rows < h {
		h = rows
	}

	red := make([]float64, 0, b.Dx()*h)
	gray := true
	for y := b.Min.Y; y < b.Min.Y+h; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, _, _ := img.At(x, y).RGBA()
			r8, g8 := r>>8, g>>8
			if r8 != g8 {
				gray = false
			}
			red = append(red, float64(r8))
		}
	}

	var s Stats
	s.Grayscale = gray
	if len(red) == 0 {
		return s
	}
	s.Mean, s.Std = stat.PopMeanStdDev(red, nil)
	s.Max = floats.Max(red)
	return s
}

// Find lists the frames in dir. When dir holds no frames its immediate
// subfolders are searched instead, one level deep.
func Find(dir string) ([]Source, error) {
	top, err := imagesIn(dir)
	if err != nil {
		return nil, err
	}
	if len(top) > 0 {
		return top, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var all []Source
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		sub, err := imagesIn(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		all = append(all, sub...)
	}
	return all, nil
}

func imagesIn(dir string) ([]Source, error) {
	listing, err := extractor.Enumerate(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Source, 0, len(listing.Frames))
	for _, f := range listing.Frames {
		out = append(out, Source{Folder: dir, Name: f.ID})
	}
	return out, nil
}

// ComputeAll measures every source with up to workers goroutines. Frames
// that fail to decode keep zero statistics and an Error, as a black frame
// would, so they land in the null category.
func ComputeAll(ctx context.Context, sources []Source, rows, workers int, logger *slog.Logger) ([]Stats, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]Stats, len(sources))

	var mu sync.Mutex
	done := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := extractor.Load(models.Frame{ID: src.Name, Path: src.Path(), Resolved: src.Path()})
			if err != nil {
				logger.Warn("Failed to process frame", "path", src.Path(), "error", err)
				out[i] = Stats{Source: src, Error: err.Error()}
			} else {
				s := Compute(img, rows)
				s.Source = src
				out[i] = s
			}

			mu.Lock()
			done++
			if done%500 == 0 {
				logger.Info("Computing frame statistics", "done", done, "total", len(sources))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Category is the lighting class of a frame.
type Category string

const (
	// CategoryNull frames have no pixel bright enough to be a flash.
	CategoryNull Category = "null"
	// CategoryDays frames are in colour, i.e. taken in daylight.
	CategoryDays Category = "days"
	// CategoryDark frames are almost uniformly black.
	CategoryDark Category = "dark"
	// CategoryDusk frames are night frames with some scene light left.
	CategoryDusk Category = "dusk"
)

// Categories lists every category in output order.
var Categories = []Category{CategoryDays, CategoryDusk, CategoryDark, CategoryNull}

// Thresholds drive Classify.
type Thresholds struct {
	MinMaxBrightness float64 `json:"min_max_brightness"`
	MaxAvgBrightness float64 `json:"max_avg_brightness"`
	MaxStdOverMean   float64 `json:"max_std_over_mean"`
}

// DefaultThresholds match the field cameras.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinMaxBrightness: 50,
		MaxAvgBrightness: 8,
		MaxStdOverMean:   0.25,
	}
}

// Classify assigns s to exactly one category.
func Classify(s Stats, th Thresholds) Category {
	switch {
	case s.Max < th.MinMaxBrightness:
		return CategoryNull
	case !s.Grayscale:
		return CategoryDays
	case s.Mean < th.MaxAvgBrightness && s.Ratio() < th.MaxStdOverMean:
		return CategoryDark
	default:
		return CategoryDusk
	}
}

// SortOptions configures SortInto.
type SortOptions struct {
	Dest       string
	Thresholds Thresholds
	// Link places symbolic links instead of copies. Sources that are
	// themselves links are always replicated as links.
	Link bool
}

// SortInto places every frame under <dest>/<category>/<date folder>/ and
// writes the thresholds used to <dest>/thresholds.txt. It returns the number
// of frames per category.
func SortInto(stats []Stats, opts SortOptions, logger *slog.Logger) (map[Category]int, error) {
	for _, c := range Categories {
		if err := os.MkdirAll(filepath.Join(opts.Dest, string(c)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create category folder: %w", err)
		}
	}

	counts := make(map[Category]int)
	for _, s := range stats {
		cat := Classify(s, opts.Thresholds)
		counts[cat]++

		dateFolder := filepath.Base(filepath.Clean(s.Folder))
		dst := filepath.Join(opts.Dest, string(cat), dateFolder, s.Name)

		src, asLink := s.Path(), opts.Link
		if info, err := os.Lstat(src); err == nil && info.Mode()&os.ModeSymlink != 0 {
			if target, err := filepath.EvalSymlinks(src); err == nil {
				src, asLink = target, true
			}
		}
		if err := materialize.Place(src, dst, asLink); err != nil {
			logger.Warn("Failed to place frame",
				"source", s.Path(),
				"dest", dst,
				"error", err)
		}
	}

	if err := WriteThresholds(filepath.Join(opts.Dest, "thresholds.txt"), opts.Thresholds); err != nil {
		return counts, err
	}
	return counts, nil
}

// WriteThresholds records the thresholds next to the sorted frames.
func WriteThresholds(path string, th Thresholds) error {
	content := fmt.Sprintf("min_max_brightness = %g\nmax_avg_brightness = %g\nmax_s/m_threshold = %g\n",
		th.MinMaxBrightness, th.MaxAvgBrightness, th.MaxStdOverMean)
	return os.WriteFile(path, []byte(content), 0644)
}

// SortedCategories returns the categories present in counts, in output order.
func SortedCategories(counts map[Category]int) []Category {
	out := make([]Category, 0, len(counts))
	for _, c := range Categories {
		if _, ok := counts[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
