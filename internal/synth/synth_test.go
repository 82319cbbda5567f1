package synth

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniform(t *testing.T) {
	img := Uniform(3, 2, 8)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	assert.Equal(t, color.RGBA{8, 8, 8, 255}, img.RGBAAt(2, 1))
}

func TestDisk(t *testing.T) {
	img := Uniform(20, 20, 0)
	c := color.RGBA{0, 200, 0, 255}
	Disk(img, 10, 10, 2, c)

	assert.Equal(t, c, img.RGBAAt(10, 10))
	assert.Equal(t, c, img.RGBAAt(12, 10))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(12, 12), "corner lies outside the radius")

	// partly outside the frame
	Disk(img, 0, 0, 3, c)
	assert.Equal(t, c, img.RGBAAt(0, 0))
}

func TestAddGaussianSpot(t *testing.T) {
	img := Uniform(64, 64, 8)
	AddGaussianSpot(img, 32, 32, 2, 255)

	assert.Equal(t, uint8(255), img.RGBAAt(32, 32).G, "centre clips at 255")
	assert.Equal(t, img.RGBAAt(30, 32), img.RGBAAt(34, 32), "spot is symmetric")
	assert.Greater(t, img.RGBAAt(31, 32).G, img.RGBAAt(30, 32).G)
	assert.Equal(t, uint8(8), img.RGBAAt(32+SpotRadius+1, 32).G, "kernel is cut at its radius")
	assert.Equal(t, uint8(8), img.RGBAAt(32, 32+SpotRadius).G, "tail truncates to zero")

	px := img.RGBAAt(33, 32)
	assert.Equal(t, px.R, px.G)
	assert.Equal(t, px.G, px.B)
}

func TestAddGaussianSpotAtEdge(t *testing.T) {
	img := Uniform(16, 16, 8)
	assert.NotPanics(t, func() { AddGaussianSpot(img, 0, 15, 2, 255) })
	assert.Equal(t, uint8(255), img.RGBAAt(0, 15).G)
}

func TestWriteSweep(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sweep")
	cfg := SweepConfig{Width: 32, Height: 16, Fill: 8, Step: 16, Sigma: 2, Peak: 255}

	paths, err := WriteSweep(dir, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "spot_x0000_y0000.png"),
		filepath.Join(dir, "spot_x0016_y0000.png"),
	}, paths)
	for _, p := range paths {
		assert.FileExists(t, p)
	}

	_, err = WriteSweep(dir, SweepConfig{Width: 4, Height: 4})
	assert.Error(t, err)
}
