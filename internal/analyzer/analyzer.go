package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bdougie/flashtrap/internal/detect"
	"github.com/bdougie/flashtrap/internal/extractor"
	"github.com/bdougie/flashtrap/internal/materialize"
	"github.com/bdougie/flashtrap/internal/metrics"
	"github.com/bdougie/flashtrap/internal/models"
	"github.com/bdougie/flashtrap/internal/storage"
)

// Options holds the per-run settings of a Processor
type Options struct {
	Params   detect.Parameters
	Workers  int
	Strategy detect.Strategy
	RunID    string
}

// Processor runs the two-phase detection over a directory of frames
type Processor struct {
	opts         Options
	storage      storage.Storage
	materializer *materialize.Materializer
	verifier     Verifier
	logger       *slog.Logger
}

// ProcessorOption configures optional collaborators
type ProcessorOption func(*Processor)

// WithMaterializer places valid frames after the run. Without one the run
// only reports verdicts.
func WithMaterializer(m *materialize.Materializer) ProcessorOption {
	return func(p *Processor) { p.materializer = m }
}

// WithVerifier asks v about every valid frame. Answers are recorded on the
// results and never change the verdicts.
func WithVerifier(v Verifier) ProcessorOption {
	return func(p *Processor) { p.verifier = v }
}

// NewProcessor validates the parameters and builds a processor. Invalid
// parameters are returned here, before any frame is touched.
func NewProcessor(opts Options, store storage.Storage, logger *slog.Logger, extra ...ProcessorOption) (*Processor, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Strategy == "" {
		opts.Strategy = detect.StrategyAuto
	}
	if store == nil {
		store = storage.Nop{}
	}

	p := &Processor{
		opts:    opts,
		storage: store,
		logger:  logger,
	}
	for _, o := range extra {
		o(p)
	}
	return p, nil
}

// Run processes every frame in dir. Configuration problems abort the run;
// problems with a single frame are recorded on that frame and the run
// continues.
func (p *Processor) Run(ctx context.Context, dir string) (*Run, error) {
	start := time.Now()
	run := newRun(p.opts.RunID, dir)

	listing, err := extractor.Enumerate(dir)
	if err != nil {
		return nil, err
	}

	for _, fe := range listing.Unresolved {
		p.logger.Warn("Skipping unresolved reference",
			"frame", fe.FrameID,
			"error", fe.Err)
		run.add(models.FrameResult{
			Frame:  models.Frame{ID: fe.FrameID},
			Status: models.StatusSkippedUnresolved,
			Error:  fe.Error(),
		})
		run.FrameErrors = append(run.FrameErrors, fe)
	}

	if len(listing.Frames) == 0 {
		p.logger.Warn("No frames found", "dir", dir)
		return p.finish(ctx, run, start)
	}

	if err := p.checkGeometry(listing.Frames); err != nil {
		return nil, err
	}

	p.logger.Info("Found frames to analyze",
		"dir", dir,
		"frames", len(listing.Frames),
		"workers", p.opts.Workers)

	// Phase 1: per-frame detection
	pool := detect.NewPool()
	if err := p.processFrames(ctx, listing.Frames, pool, run); err != nil {
		return nil, err
	}

	// Barrier: no verdict is computed until every worker has finished and
	// the pool refuses further candidates.
	candidates := pool.Freeze()
	metrics.CandidatesDetectedTotal.Add(float64(len(candidates)))

	// Phase 2: cross-frame deduplication
	dedupStart := time.Now()
	dedup, err := detect.Deduplicate(ctx, candidates, p.opts.Params.DistanceCutoff,
		detect.WithStrategy(p.opts.Strategy),
		detect.WithWorkers(p.opts.Workers))
	if err != nil {
		return nil, fmt.Errorf("deduplication failed: %w", err)
	}
	metrics.Observe("dedup", dedupStart)
	metrics.CandidatesRemovedTotal.Add(float64(len(dedup.Removed)))

	run.Dedup = dedup
	run.Verdicts = dedup.Verdicts
	run.applyVerdicts(dedup)

	p.logger.Info("Deduplication finished",
		"candidates", len(candidates),
		"removed", len(dedup.Removed),
		"kept", len(dedup.Kept),
		"valid_frames", dedup.Verdicts.Len(),
		"strategy", dedup.Strategy)

	if p.verifier != nil {
		p.verify(ctx, listing.Frames, run)
	}

	if p.materializer != nil {
		materializeStart := time.Now()
		done, err := p.materializer.MaterializeAll(ctx, listing.Frames, run.Verdicts)
		for _, id := range done {
			run.setStatus(id, models.StatusMaterialized)
		}
		if err != nil {
			run.FrameErrors = append(run.FrameErrors, err)
		}
		run.Materialized = len(done)
		metrics.Observe("materialize", materializeStart)
	}

	return p.finish(ctx, run, start)
}

// checkGeometry validates the crop against the first readable frame so a bad
// crop fails once instead of once per frame.
func (p *Processor) checkGeometry(frames []models.Frame) error {
	for _, frame := range frames {
		w, h, err := extractor.Dimensions(frame)
		if err != nil {
			// broken frames are recorded in phase 1
			continue
		}
		return p.opts.Params.ValidateFor(w, h)
	}
	return nil
}

func (p *Processor) processFrames(ctx context.Context, frames []models.Frame, pool *detect.Pool, run *Run) error {
	workChan := make(chan models.WorkItem, len(frames))
	resultsChan := make(chan models.FrameResult, len(frames))
	errorsChan := make(chan error, len(frames))

	var wg sync.WaitGroup

	remainingFrames := atomic.Int64{}
	remainingFrames.Store(int64(len(frames)))

	// Start worker pool
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				metrics.ActiveWorkers.Inc()
				result, err := p.processFrame(work.Frame, pool)
				metrics.ActiveWorkers.Dec()
				if err != nil {
					errorsChan <- fmt.Errorf("frame %d/%d failed: %w", work.FrameNum, work.Total, err)
				}
				resultsChan <- result

				remaining := remainingFrames.Add(-1)
				p.logger.Debug("Frame processed",
					"frame", work.Frame.ID,
					"status", result.Status,
					"remaining", remaining)
			}
		}()
	}

	// Send work to workers
	go func() {
		defer close(workChan)
		for i, frame := range frames {
			select {
			case <-ctx.Done():
				return
			case workChan <- models.WorkItem{Frame: frame, FrameNum: i + 1, Total: len(frames)}:
			}
		}
	}()

	// Collect results
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for result := range resultsChan {
			run.add(result)
		}
	}()

	// Wait for all workers to finish
	wg.Wait()
	close(resultsChan)
	close(errorsChan)
	<-collected

	for err := range errorsChan {
		p.logger.Warn("Frame skipped", "error", err)
		run.FrameErrors = append(run.FrameErrors, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled after %d of %d frames: %w",
			len(frames)-int(remainingFrames.Load()), len(frames), err)
	}
	return nil
}

// processFrame runs load, preprocess and detect for one frame. A returned
// error is always a per-frame error; the result carries the matching status.
func (p *Processor) processFrame(frame models.Frame, pool *detect.Pool) (models.FrameResult, error) {
	result := models.FrameResult{Frame: frame, Status: models.StatusPending}

	fail := func(err error) (models.FrameResult, error) {
		result.Status = models.StatusInvalidInput
		if errors.Is(err, detect.ErrUnresolvedReference) {
			result.Status = models.StatusSkippedUnresolved
		}
		result.Error = err.Error()
		return result, err
	}

	loadStart := time.Now()
	img, err := extractor.Load(frame)
	if err != nil {
		return fail(err)
	}
	metrics.Observe("load", loadStart)
	result.Frame.Width = img.Bounds().Dx()
	result.Frame.Height = img.Bounds().Dy()

	preprocessStart := time.Now()
	m, err := detect.Preprocess(img, p.opts.Params)
	if err != nil {
		return fail(detect.NewFrameError(frame.ID, detect.ErrInvalidInput, err))
	}
	metrics.Observe("preprocess", preprocessStart)
	result.Status = models.StatusPreprocessed

	detectStart := time.Now()
	det, err := detect.Detect(m, p.opts.Params)
	if err != nil {
		return fail(detect.NewFrameError(frame.ID, detect.ErrInvalidInput, err))
	}
	metrics.Observe("detect", detectStart)

	result.Blobs = det.Blobs
	switch {
	case det.TooNoisy:
		result.Status = models.StatusTooNoisy
	case len(det.Candidates) == 0:
		result.Status = models.StatusNoCandidates
	default:
		result.Status = models.StatusHasCandidates
		result.Candidates = det.ForFrame(frame.ID)
		if err := pool.Add(result.Candidates...); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (p *Processor) verify(ctx context.Context, frames []models.Frame, run *Run) {
	for _, frame := range frames {
		if !run.Verdicts.Has(frame.ID) {
			continue
		}
		confirmed, err := p.verifier.Verify(ctx, frame.Resolved)
		if err != nil {
			p.logger.Warn("Verification failed",
				"frame", frame.ID,
				"error", err)
			continue
		}
		run.setVerified(frame.ID, confirmed)
		p.logger.Info("Verification",
			"frame", frame.ID,
			"confirmed", confirmed)
	}
}

// finish stores every result, updates metrics and logs the summary.
func (p *Processor) finish(ctx context.Context, run *Run, start time.Time) (*Run, error) {
	results := run.Sorted()
	for _, r := range results {
		metrics.FramesProcessedTotal.WithLabelValues(string(r.Status)).Inc()
		if err := p.storage.AddResult(ctx, r); err != nil {
			return run, fmt.Errorf("failed to store result for %s: %w", r.Frame.ID, err)
		}
	}

	// Flush any remaining results
	if err := p.storage.Flush(); err != nil {
		return run, fmt.Errorf("failed to flush final results: %w", err)
	}

	run.Duration = time.Since(start)
	counts := run.Counts()
	args := []any{"frames", len(results), "valid", run.Verdicts.Len(), "duration", run.Duration.Round(time.Millisecond)}
	for _, status := range sortedStatuses(counts) {
		args = append(args, string(status), counts[status])
	}
	p.logger.Info("Run finished", args...)

	if len(run.FrameErrors) > 0 {
		p.logger.Warn("Some frames were skipped", "errors", len(run.FrameErrors))
	}
	return run, nil
}

func sortedStatuses(counts map[models.FrameStatus]int) []models.FrameStatus {
	out := make([]models.FrameStatus, 0, len(counts))
	for s := range counts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
