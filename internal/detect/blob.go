package detect

import (
	"fmt"
	"image"
	"math"

	"github.com/bdougie/flashtrap/internal/models"
)

// Blob is one connected bright region of a preprocessed map.
type Blob struct {
	// CX, CY are the mean column and row of the member pixels.
	CX, CY float64
	Size   int
}

// Detection is the outcome of blob detection on one frame.
type Detection struct {
	// TooNoisy is set when more blobs survived the size filter than allowed.
	// Candidates is empty in that case.
	TooNoisy bool
	// Blobs is the number of blobs that survived the size filter.
	Blobs      int
	Candidates []models.Candidate
}

// ForFrame stamps the frame ID on every candidate.
func (d Detection) ForFrame(frameID string) []models.Candidate {
	out := make([]models.Candidate, len(d.Candidates))
	for i, c := range d.Candidates {
		c.FrameID = frameID
		out[i] = c
	}
	return out
}

var (
	neighbours4 = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	neighbours8 = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}, {-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
)

// Label binarizes m at threshold and returns every connected foreground
// region, in raster order of its first pixel.
func Label(m *image.Gray, threshold int, conn Connectivity) []Blob {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()

	offsets := neighbours4
	if conn == Connect8 {
		offsets = neighbours8
	}

	fg := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+w]
		for x, v := range row {
			fg[y*w+x] = int(v) >= threshold
		}
	}

	visited := make([]bool, w*h)
	var blobs []Blob
	queue := make([]int, 0, 64)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !fg[y*w+x] || visited[y*w+x] {
				continue
			}

			var sumX, sumY float64
			var count int
			queue = append(queue[:0], y*w+x)
			visited[y*w+x] = true

			for len(queue) > 0 {
				idx := queue[0]
				queue = queue[1:]
				py, px := idx/w, idx%w
				sumX += float64(px)
				sumY += float64(py)
				count++

				for _, d := range offsets {
					nx, ny := px+d[0], py+d[1]
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if fg[nidx] && !visited[nidx] {
						visited[nidx] = true
						queue = append(queue, nidx)
					}
				}
			}

			blobs = append(blobs, Blob{
				CX:   sumX / float64(count),
				CY:   sumY / float64(count),
				Size: count,
			})
		}
	}
	return blobs
}

// Detect thresholds a preprocessed map, labels connected regions, drops the
// ones smaller than MinBlobSize and turns the rest into candidates. A frame
// with more than MaxBlobCount surviving blobs is reported as too noisy and
// yields no candidates.
func Detect(m *image.Gray, p Parameters) (Detection, error) {
	if m == nil {
		return Detection{}, fmt.Errorf("%w: nil intensity map", ErrInvalidInput)
	}
	if m.Bounds().Empty() {
		return Detection{}, fmt.Errorf("%w: empty intensity map", ErrInvalidInput)
	}

	var kept []Blob
	for _, blob := range Label(m, p.Threshold, p.Connectivity) {
		if blob.Size >= p.MinBlobSize {
			kept = append(kept, blob)
		}
	}

	det := Detection{Blobs: len(kept)}
	if len(kept) > p.MaxBlobCount {
		det.TooNoisy = true
		return det, nil
	}

	for _, blob := range kept {
		det.Candidates = append(det.Candidates, models.Candidate{
			X:    int(math.Round(blob.CX)),
			Y:    int(math.Round(blob.CY)),
			Size: blob.Size,
		})
	}
	return det, nil
}
