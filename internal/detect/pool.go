package detect

import (
	"sync"

	"github.com/bdougie/flashtrap/internal/models"
)

// Pool accumulates candidates from concurrent detection workers until the
// batch barrier, after which it is read-only.
type Pool struct {
	mu         sync.Mutex
	candidates []models.Candidate
	frozen     bool
}

// NewPool creates an empty candidate pool
func NewPool() *Pool {
	return &Pool{}
}

// Add appends candidates. It fails once the pool is frozen.
func (p *Pool) Add(cs ...models.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		return ErrPoolFrozen
	}
	p.candidates = append(p.candidates, cs...)
	return nil
}

// Len returns the number of candidates collected so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candidates)
}

// Frozen reports whether Freeze has been called.
func (p *Pool) Frozen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frozen
}

// Freeze closes the pool and returns its contents. Calling it again returns
// the same candidates.
func (p *Pool) Freeze() []models.Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frozen = true
	out := make([]models.Candidate, len(p.candidates))
	copy(out, p.candidates)
	return out
}
