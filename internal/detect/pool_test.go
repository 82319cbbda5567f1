package detect

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdougie/flashtrap/internal/models"
)

func TestPoolConcurrentAddThenFreeze(t *testing.T) {
	pool := NewPool()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.NoError(t, pool.Add(models.Candidate{X: w, Y: i}))
			}
		}()
	}
	wg.Wait()

	assert.False(t, pool.Frozen())
	got := pool.Freeze()
	assert.Len(t, got, 800)
	assert.True(t, pool.Frozen())

	assert.ErrorIs(t, pool.Add(models.Candidate{}), ErrPoolFrozen)
	assert.Equal(t, 800, pool.Len())
	assert.Len(t, pool.Freeze(), 800)
}
