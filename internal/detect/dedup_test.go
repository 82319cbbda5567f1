package detect

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/flashtrap/internal/models"
)

var strategies = []Strategy{StrategyPairwise, StrategyGrid}

func TestDeduplicateBoundary(t *testing.T) {
	const cutoff = 16.0

	for _, s := range strategies {
		t.Run(string(s), func(t *testing.T) {
			near := []models.Candidate{
				{FrameID: "a", X: 100, Y: 100},
				{FrameID: "b", X: 100 + int(cutoff) - 1, Y: 100},
			}
			res, err := Deduplicate(context.Background(), near, cutoff, WithStrategy(s))
			require.NoError(t, err)
			assert.Empty(t, res.Kept)
			assert.Len(t, res.Removed, 2)
			assert.Zero(t, res.Verdicts.Len())

			exact := []models.Candidate{
				{FrameID: "a", X: 100, Y: 100},
				{FrameID: "b", X: 100 + int(cutoff), Y: 100},
			}
			res, err = Deduplicate(context.Background(), exact, cutoff, WithStrategy(s))
			require.NoError(t, err)
			assert.Len(t, res.Kept, 2)
			assert.Empty(t, res.Removed)
			assert.Equal(t, []string{"a", "b"}, res.Verdicts.Sorted())
		})
	}
}

func TestDeduplicateIsFrameAgnostic(t *testing.T) {
	// two candidates from the same frame still cancel each other
	pool := []models.Candidate{
		{FrameID: "a", X: 10, Y: 10},
		{FrameID: "a", X: 12, Y: 10},
		{FrameID: "a", X: 300, Y: 300},
	}
	res, err := Deduplicate(context.Background(), pool, 16)
	require.NoError(t, err)
	assert.Equal(t, []models.Candidate{{FrameID: "a", X: 300, Y: 300}}, res.Kept)
	assert.True(t, res.Verdicts.Has("a"))
}

func TestDeduplicateSingleCandidateNeverSelfRemoves(t *testing.T) {
	pool := []models.Candidate{{FrameID: "only", X: 5, Y: 5}}
	res, err := Deduplicate(context.Background(), pool, 1000)
	require.NoError(t, err)
	assert.Equal(t, pool, res.Kept)
}

func TestDeduplicateZeroCutoffKeepsEverything(t *testing.T) {
	pool := []models.Candidate{
		{FrameID: "a", X: 5, Y: 5},
		{FrameID: "b", X: 5, Y: 5},
	}
	res, err := Deduplicate(context.Background(), pool, 0)
	require.NoError(t, err)
	assert.Equal(t, pool, res.Kept)
	assert.Equal(t, 2, res.Verdicts.Len())
}

func TestDeduplicateIdempotent(t *testing.T) {
	pool := randomPool(500, 400, 300, 1)

	for _, s := range strategies {
		t.Run(string(s), func(t *testing.T) {
			first, err := Deduplicate(context.Background(), pool, 16, WithStrategy(s))
			require.NoError(t, err)

			second, err := Deduplicate(context.Background(), first.Kept, 16, WithStrategy(s))
			require.NoError(t, err)
			assert.Empty(t, second.Removed)
			assert.Equal(t, first.Kept, second.Kept)
		})
	}
}

func TestDeduplicateGridMatchesPairwise(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			pool := randomPool(800, 640, 480, seed)

			pw, err := Deduplicate(context.Background(), pool, 16, WithStrategy(StrategyPairwise), WithWorkers(3))
			require.NoError(t, err)
			grid, err := Deduplicate(context.Background(), pool, 16, WithStrategy(StrategyGrid))
			require.NoError(t, err)

			if diff := cmp.Diff(pw.Kept, grid.Kept); diff != "" {
				t.Errorf("kept mismatch (-pairwise +grid):\n%s", diff)
			}
			if diff := cmp.Diff(pw.Verdicts.Sorted(), grid.Verdicts.Sorted()); diff != "" {
				t.Errorf("verdicts mismatch (-pairwise +grid):\n%s", diff)
			}
		})
	}
}

func TestDeduplicateNegativeCoordinates(t *testing.T) {
	pool := []models.Candidate{
		{FrameID: "a", X: -3, Y: -3},
		{FrameID: "b", X: 3, Y: 3},
	}
	res, err := Deduplicate(context.Background(), pool, 16, WithStrategy(StrategyGrid))
	require.NoError(t, err)
	assert.Empty(t, res.Kept)
}

func TestDeduplicateAutoStrategy(t *testing.T) {
	res, err := Deduplicate(context.Background(), randomPool(10, 100, 100, 1), 16)
	require.NoError(t, err)
	assert.Equal(t, StrategyPairwise, res.Strategy)

	res, err = Deduplicate(context.Background(), randomPool(AutoGridThreshold, 5000, 5000, 1), 16)
	require.NoError(t, err)
	assert.Equal(t, StrategyGrid, res.Strategy)
}

func TestDeduplicateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Deduplicate(ctx, randomPool(2000, 1000, 1000, 1), 16, WithStrategy(StrategyPairwise), WithWorkers(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeduplicateRejectsBadInput(t *testing.T) {
	_, err := Deduplicate(context.Background(), nil, -1)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Deduplicate(context.Background(), randomPool(3, 10, 10, 1), 5, WithStrategy("kdtree"))
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = ParseStrategy("kdtree")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyAuto, s)
}

func randomPool(n, w, h int, seed int64) []models.Candidate {
	rng := rand.New(rand.NewSource(seed))
	pool := make([]models.Candidate, n)
	for i := range pool {
		pool[i] = models.Candidate{
			FrameID: fmt.Sprintf("frame_%04d.jpg", rng.Intn(n/2+1)),
			X:       rng.Intn(w),
			Y:       rng.Intn(h),
			Size:    8 + rng.Intn(40),
		}
	}
	return pool
}
