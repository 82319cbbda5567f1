package detect

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/flashtrap/internal/synth"
)

func TestPreprocessDimensions(t *testing.T) {
	p := DefaultParameters()
	out, err := Preprocess(synth.Uniform(1920, 1440, 8), p)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1888, 1280), out.Bounds())
}

func TestPreprocessUniformStaysUniform(t *testing.T) {
	p := DefaultParameters().WithCrop(4, 4, 4, 4)
	out, err := Preprocess(synth.Uniform(64, 48, 8), p)
	require.NoError(t, err)

	for i, v := range out.Pix {
		if v != 8 {
			t.Fatalf("pixel %d = %d, want 8", i, v)
		}
	}
}

func TestPreprocessUsesGreenChannel(t *testing.T) {
	p := DefaultParameters().WithCrop(0, 0, 0, 0)
	img := synth.Uniform(64, 64, 0)
	synth.Disk(img, 16, 32, 6, color.RGBA{R: 255, A: 255})
	synth.Disk(img, 48, 32, 6, color.RGBA{G: 255, A: 255})

	out, err := Preprocess(img, p)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), out.GrayAt(16, 32).Y, "red disk must not show up")
	assert.Greater(t, out.GrayAt(48, 32).Y, uint8(200), "green disk must show up")
}

func TestPreprocessCropShiftsCoordinates(t *testing.T) {
	p := DefaultParameters().WithCrop(10, 0, 20, 0)
	img := synth.Uniform(100, 100, 0)
	synth.Disk(img, 50, 40, 5, color.RGBA{G: 255, A: 255})

	out, err := Preprocess(img, p)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 80, 90), out.Bounds())
	assert.Greater(t, out.GrayAt(30, 30).Y, uint8(200))
}

func TestPreprocessErrors(t *testing.T) {
	p := DefaultParameters()

	_, err := Preprocess(nil, p)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Preprocess(image.NewRGBA(image.Rectangle{}), p)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Preprocess(synth.Uniform(100, 100, 0), p)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}
