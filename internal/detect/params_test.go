package detect

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParametersAreValid(t *testing.T) {
	p := DefaultParameters()
	require.NoError(t, p.Validate())
	require.NoError(t, p.ValidateFor(1920, 1440))

	r, err := p.Interior(image.Rect(0, 0, 1920, 1440))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(16, 16, 1904, 1296), r)
	assert.Equal(t, 1888, r.Dx())
	assert.Equal(t, 1280, r.Dy())
}

func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Parameters)
		want   error
	}{
		{"negative crop", func(p *Parameters) { p.CropLeft = -1 }, ErrInvalidGeometry},
		{"zero sigma", func(p *Parameters) { p.GaussianRadius = 0 }, ErrInvalidParameters},
		{"threshold above 255", func(p *Parameters) { p.Threshold = 256 }, ErrInvalidParameters},
		{"negative threshold", func(p *Parameters) { p.Threshold = -1 }, ErrInvalidParameters},
		{"zero min blob", func(p *Parameters) { p.MinBlobSize = 0 }, ErrInvalidParameters},
		{"zero max blobs", func(p *Parameters) { p.MaxBlobCount = 0 }, ErrInvalidParameters},
		{"negative cutoff", func(p *Parameters) { p.DistanceCutoff = -0.5 }, ErrInvalidParameters},
		{"NaN sigma", func(p *Parameters) { p.GaussianRadius = math.NaN() }, ErrInvalidParameters},
		{"infinite sigma", func(p *Parameters) { p.GaussianRadius = math.Inf(1) }, ErrInvalidParameters},
		{"NaN cutoff", func(p *Parameters) { p.DistanceCutoff = math.NaN() }, ErrInvalidParameters},
		{"infinite cutoff", func(p *Parameters) { p.DistanceCutoff = math.Inf(1) }, ErrInvalidParameters},
		{"connectivity 6", func(p *Parameters) { p.Connectivity = 6 }, ErrInvalidParameters},
		{"zero cutoff ok", func(p *Parameters) { p.DistanceCutoff = 0 }, nil},
		{"8-connectivity ok", func(p *Parameters) { p.Connectivity = Connect8 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.mutate(&p)
			err := p.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestInteriorEmpty(t *testing.T) {
	p := DefaultParameters().WithCrop(100, 100, 0, 0)
	_, err := p.Interior(image.Rect(0, 0, 300, 200))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGeometry))

	err = p.ValidateFor(300, 200)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestInteriorOversizedCrop(t *testing.T) {
	// margins larger than the frame must not flip into a valid rectangle
	p := DefaultParameters().WithCrop(0, 0, 8, 8)
	_, err := p.Interior(image.Rect(0, 0, 10, 10))
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestInteriorHonoursOffsetBounds(t *testing.T) {
	p := DefaultParameters().WithCrop(1, 2, 3, 4)
	r, err := p.Interior(image.Rect(10, 20, 110, 120))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(13, 21, 106, 118), r)
}

func TestFrameErrorUnwrap(t *testing.T) {
	cause := errors.New("bad jpeg")
	err := NewFrameError("IMG_0001.JPG", ErrInvalidInput, cause)

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsFatal(err))
	assert.Equal(t, "frame IMG_0001.JPG: invalid input: bad jpeg", err.Error())

	var fe *FrameError
	require.True(t, errors.As(error(err), &fe))
	assert.Equal(t, "IMG_0001.JPG", fe.FrameID)
}
