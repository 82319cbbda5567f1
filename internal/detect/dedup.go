package detect

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/bdougie/flashtrap/internal/models"
)

// Strategy selects how close pairs are found.
type Strategy string

const (
	// StrategyAuto uses pairwise for small pools and the grid above AutoGridThreshold.
	StrategyAuto Strategy = "auto"
	// StrategyPairwise compares every unordered pair.
	StrategyPairwise Strategy = "pairwise"
	// StrategyGrid only compares pairs in neighbouring cells of a uniform grid.
	StrategyGrid Strategy = "grid"
)

// AutoGridThreshold is the pool size at which StrategyAuto switches to the grid.
const AutoGridThreshold = 4096

// ParseStrategy converts a flag or env value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAuto, StrategyPairwise, StrategyGrid:
		return Strategy(s), nil
	case "":
		return StrategyAuto, nil
	}
	return "", fmt.Errorf("%w: unknown dedup strategy %q", ErrInvalidParameters, s)
}

type dedupOptions struct {
	strategy Strategy
	workers  int
}

// DedupOption configures Deduplicate.
type DedupOption func(*dedupOptions)

// WithStrategy overrides the pair search strategy.
func WithStrategy(s Strategy) DedupOption {
	return func(o *dedupOptions) { o.strategy = s }
}

// WithWorkers sets how many partitions the pairwise search is split into.
func WithWorkers(n int) DedupOption {
	return func(o *dedupOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// DedupResult is the outcome of cross-frame deduplication.
type DedupResult struct {
	Kept     []models.Candidate
	Removed  []models.Candidate
	Verdicts models.VerdictSet
	Strategy Strategy
}

// Deduplicate removes every candidate that lies strictly closer than cutoff
// to any other candidate in the pool, regardless of which frames they came
// from. Both members of such a pair are removed. Frames left with at least
// one candidate form the verdict set.
//
// The pool must be complete: a candidate added afterwards could have removed
// one that was already judged valid.
func Deduplicate(ctx context.Context, pool []models.Candidate, cutoff float64, opts ...DedupOption) (DedupResult, error) {
	o := dedupOptions{strategy: StrategyAuto, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	if cutoff < 0 {
		return DedupResult{}, fmt.Errorf("%w: distance cutoff must be >= 0, got %g", ErrInvalidParameters, cutoff)
	}

	strategy := o.strategy
	if strategy == StrategyAuto {
		strategy = StrategyPairwise
		if len(pool) >= AutoGridThreshold {
			strategy = StrategyGrid
		}
	}

	var removed []bool
	switch {
	case cutoff == 0 || len(pool) < 2:
		removed = make([]bool, len(pool))
	case strategy == StrategyGrid:
		removed = newGridIndex(cutoff, pool).closePairs(pool, cutoff)
	case strategy == StrategyPairwise:
		var err error
		removed, err = pairwise(ctx, pool, cutoff, o.workers)
		if err != nil {
			return DedupResult{}, err
		}
	default:
		return DedupResult{}, fmt.Errorf("%w: unknown dedup strategy %q", ErrInvalidParameters, strategy)
	}

	res := DedupResult{
		Verdicts: models.NewVerdictSet(),
		Strategy: strategy,
	}
	for i, c := range pool {
		if removed[i] {
			res.Removed = append(res.Removed, c)
			continue
		}
		res.Kept = append(res.Kept, c)
		res.Verdicts[c.FrameID] = struct{}{}
	}
	return res, nil
}

// pairwise splits the outer loop into interleaved row stripes so each worker
// gets a similar share of the triangle. Each worker marks its own slice and
// the marks are merged after all workers finish.
func pairwise(ctx context.Context, pool []models.Candidate, cutoff float64, workers int) ([]bool, error) {
	n := len(pool)
	if workers > n {
		workers = n
	}
	cutoff2 := cutoff * cutoff
	marks := make([][]bool, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			local := make([]bool, n)
			rows := 0
			for i := w; i < n; i += workers {
				rows++
				if rows%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				for j := i + 1; j < n; j++ {
					if dist2(pool[i], pool[j]) < cutoff2 {
						local[i] = true
						local[j] = true
					}
				}
			}
			marks[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pairwise dedup: %w", err)
	}

	removed := make([]bool, n)
	for _, local := range marks {
		for i, m := range local {
			if m {
				removed[i] = true
			}
		}
	}
	return removed, nil
}
