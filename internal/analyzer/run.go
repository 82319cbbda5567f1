package analyzer

import (
	"sort"
	"sync"
	"time"

	"github.com/bdougie/flashtrap/internal/detect"
	"github.com/bdougie/flashtrap/internal/models"
)

// Run is the outcome of one Processor.Run call
type Run struct {
	ID           string
	InputDir     string
	Verdicts     models.VerdictSet
	Dedup        detect.DedupResult
	Materialized int
	// FrameErrors holds per-frame problems that did not abort the run.
	FrameErrors []error
	Duration    time.Duration

	mu      sync.Mutex
	results map[string]*models.FrameResult
}

func newRun(id, dir string) *Run {
	return &Run{
		ID:       id,
		InputDir: dir,
		Verdicts: models.NewVerdictSet(),
		results:  make(map[string]*models.FrameResult),
	}
}

func (r *Run) add(result models.FrameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result.RunID = r.ID
	r.results[result.Frame.ID] = &result
}

func (r *Run) setStatus(id string, status models.FrameStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[id]; ok {
		res.Status = status
	}
}

func (r *Run) setVerified(id string, confirmed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[id]; ok {
		res.Verified = &confirmed
	}
}

// applyVerdicts moves every frame that reached phase 2 to valid or invalid
// and records which of its candidates survived.
func (r *Run) applyVerdicts(dedup detect.DedupResult) {
	kept := make(map[string][]models.Candidate)
	for _, c := range dedup.Kept {
		kept[c.FrameID] = append(kept[c.FrameID], c)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, res := range r.results {
		if res.Status.Failed() {
			continue
		}
		res.Kept = kept[id]
		if dedup.Verdicts.Has(id) {
			res.Status = models.StatusValid
		} else {
			res.Status = models.StatusInvalid
		}
	}
}

// Result returns the result recorded for a frame
func (r *Run) Result(id string) (models.FrameResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	if !ok {
		return models.FrameResult{}, false
	}
	return *res, true
}

// Sorted returns every frame result ordered by frame ID
func (r *Run) Sorted() []models.FrameResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.FrameResult, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Frame.ID < out[j].Frame.ID })
	return out
}

// Counts tallies frames per final status
func (r *Run) Counts() map[models.FrameStatus]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.FrameStatus]int)
	for _, res := range r.results {
		counts[res.Status]++
	}
	return counts
}
