package detect

import (
	"math"

	"github.com/bdougie/flashtrap/internal/models"
)

// gridIndex buckets candidates into square cells of side cellSize so that
// every pair closer than cellSize lies in the same or an adjacent cell.
type gridIndex struct {
	cellSize float64
	cells    map[int64][]int // cell ID -> candidate indices
}

func newGridIndex(cellSize float64, pool []models.Candidate) *gridIndex {
	g := &gridIndex{
		cellSize: cellSize,
		cells:    make(map[int64][]int, len(pool)),
	}
	for i, c := range pool {
		cx, cy := g.cellOf(c)
		id := cellID(cx, cy)
		g.cells[id] = append(g.cells[id], i)
	}
	return g
}

func (g *gridIndex) cellOf(c models.Candidate) (int64, int64) {
	return int64(math.Floor(float64(c.X) / g.cellSize)),
		int64(math.Floor(float64(c.Y) / g.cellSize))
}

// cellID maps signed cell coordinates to a unique key: zigzag to make them
// non-negative, then Szudzik's pairing.
func cellID(cx, cy int64) int64 {
	a, b := zigzag(cx), zigzag(cy)
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

// closePairs marks every candidate that has at least one other candidate
// strictly closer than cutoff.
func (g *gridIndex) closePairs(pool []models.Candidate, cutoff float64) []bool {
	removed := make([]bool, len(pool))
	cutoff2 := cutoff * cutoff

	for i, p := range pool {
		cx, cy := g.cellOf(p)
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, j := range g.cells[cellID(cx+dx, cy+dy)] {
					// each unordered pair is visited from its lower index
					if j <= i {
						continue
					}
					if dist2(p, pool[j]) < cutoff2 {
						removed[i] = true
						removed[j] = true
					}
				}
			}
		}
	}
	return removed
}

func dist2(a, b models.Candidate) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return dx*dx + dy*dy
}
