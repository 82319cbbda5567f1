// Package synth draws artificial flashes on uniform frames. It backs the
// package tests and the needle-in-a-haystack evaluation sets.
package synth

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
)

// SpotRadius is the half width of the Gaussian spot kernel.
const SpotRadius = 16

// Uniform returns a w x h frame filled with a single gray level.
func Uniform(w, h int, level uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = level
		img.Pix[i+1] = level
		img.Pix[i+2] = level
		img.Pix[i+3] = 0xff
	}
	return img
}

// Disk paints a filled disk of radius r centred on (cx, cy). Pixels outside
// the image are ignored.
func Disk(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	b := img.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if !(image.Point{x, y}.In(b)) {
				continue
			}
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// AddGaussianSpot adds a white Gaussian spot with standard deviation sigma,
// scaled so its centre equals peak, to all three colour channels. Sums are
// clipped at 255 and the kernel is cut at the image edges.
func AddGaussianSpot(img *image.RGBA, x, y int, sigma, peak float64) {
	kernel := spotKernel(sigma, peak)
	b := img.Bounds()

	for ky := 0; ky < len(kernel); ky++ {
		py := y - SpotRadius + ky
		if py < b.Min.Y || py >= b.Max.Y {
			continue
		}
		for kx := 0; kx < len(kernel[ky]); kx++ {
			px := x - SpotRadius + kx
			if px < b.Min.X || px >= b.Max.X {
				continue
			}
			add := int(kernel[ky][kx])
			i := img.PixOffset(px, py)
			for c := 0; c < 3; c++ {
				v := int(img.Pix[i+c]) + add
				if v > 255 {
					v = 255
				}
				img.Pix[i+c] = uint8(v)
			}
		}
	}
}

func spotKernel(sigma, peak float64) [][]float64 {
	size := 2*SpotRadius + 1
	k := make([][]float64, size)
	for j := range k {
		k[j] = make([]float64, size)
		for i := range k[j] {
			dx := float64(i - SpotRadius)
			dy := float64(j - SpotRadius)
			// normalized so that the centre weight is 1
			k[j][i] = peak * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
		}
	}
	return k
}

// SweepConfig describes a grid of frames, each with one spot.
type SweepConfig struct {
	Width, Height int
	Fill          uint8
	Step          int
	Sigma         float64
	Peak          float64
}

// DefaultSweepConfig matches the 1024x512 evaluation set.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Width:  1024,
		Height: 512,
		Fill:   8,
		Step:   16,
		Sigma:  2,
		Peak:   255,
	}
}

// WriteSweep writes one PNG per grid position into dir and returns the paths.
func WriteSweep(dir string, cfg SweepConfig) ([]string, error) {
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", cfg.Step)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var paths []string
	for y := 0; y < cfg.Height; y += cfg.Step {
		for x := 0; x < cfg.Width; x += cfg.Step {
			img := Uniform(cfg.Width, cfg.Height, cfg.Fill)
			AddGaussianSpot(img, x, y, cfg.Sigma, cfg.Peak)

			path := filepath.Join(dir, fmt.Sprintf("spot_x%04d_y%04d.png", x, y))
			if err := WritePNG(path, img); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
