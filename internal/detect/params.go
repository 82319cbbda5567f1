package detect

import (
	"fmt"
	"image"
	"math"
)

// Connectivity selects the pixel neighbourhood used when labelling blobs.
type Connectivity int

const (
	// Connect4 joins pixels that share an edge.
	Connect4 Connectivity = 4
	// Connect8 joins pixels that share an edge or a corner.
	Connect8 Connectivity = 8
)

// Valid reports whether c is one of the supported neighbourhoods.
func (c Connectivity) Valid() bool {
	return c == Connect4 || c == Connect8
}

// Parameters holds the detection settings for one run. It is passed by value
// to every stage and never mutated after validation.
type Parameters struct {
	CropTop    int `json:"crop_top"`
	CropBottom int `json:"crop_bottom"`
	CropLeft   int `json:"crop_left"`
	CropRight  int `json:"crop_right"`

	// GaussianRadius is the blur standard deviation in pixels.
	GaussianRadius float64 `json:"gaussian_radius"`

	// Threshold is the binarization level; pixels >= Threshold are foreground.
	Threshold int `json:"threshold"`

	MinBlobSize  int `json:"min_blob_size"`
	MaxBlobCount int `json:"max_blob_count"`

	// DistanceCutoff is the cross-frame dedup radius in pixels. Pairs closer
	// than the cutoff are removed; pairs exactly at the cutoff survive.
	DistanceCutoff float64 `json:"distance_cutoff"`

	Connectivity Connectivity `json:"connectivity"`
}

// DefaultParameters returns the settings tuned for the 1920x1440 night frames
// of the field cameras: the bottom 144 rows hold the info banner.
func DefaultParameters() Parameters {
	return Parameters{
		CropTop:        16,
		CropBottom:     144,
		CropLeft:       16,
		CropRight:      16,
		GaussianRadius: 2,
		Threshold:      48,
		MinBlobSize:    8,
		MaxBlobCount:   5,
		DistanceCutoff: 16,
		Connectivity:   Connect4,
	}
}

// WithCrop returns a copy of p with new crop margins.
func (p Parameters) WithCrop(top, bottom, left, right int) Parameters {
	p.CropTop, p.CropBottom, p.CropLeft, p.CropRight = top, bottom, left, right
	return p
}

// WithThreshold returns a copy of p with a new binarization threshold.
func (p Parameters) WithThreshold(threshold int) Parameters {
	p.Threshold = threshold
	return p
}

// Validate checks ranges that do not depend on frame geometry.
func (p Parameters) Validate() error {
	switch {
	case p.CropTop < 0 || p.CropBottom < 0 || p.CropLeft < 0 || p.CropRight < 0:
		return fmt.Errorf("%w: crop margins must be >= 0, got top=%d bottom=%d left=%d right=%d",
			ErrInvalidGeometry, p.CropTop, p.CropBottom, p.CropLeft, p.CropRight)
	case math.IsNaN(p.GaussianRadius) || math.IsInf(p.GaussianRadius, 0) || p.GaussianRadius <= 0:
		return fmt.Errorf("%w: gaussian_radius must be finite and > 0, got %g", ErrInvalidParameters, p.GaussianRadius)
	case p.Threshold < 0 || p.Threshold > 255:
		return fmt.Errorf("%w: threshold must be in 0..255, got %d", ErrInvalidParameters, p.Threshold)
	case p.MinBlobSize < 1:
		return fmt.Errorf("%w: min_blob_size must be >= 1, got %d", ErrInvalidParameters, p.MinBlobSize)
	case p.MaxBlobCount < 1:
		return fmt.Errorf("%w: max_blob_count must be >= 1, got %d", ErrInvalidParameters, p.MaxBlobCount)
	case math.IsNaN(p.DistanceCutoff) || math.IsInf(p.DistanceCutoff, 0) || p.DistanceCutoff < 0:
		return fmt.Errorf("%w: distance_cutoff must be finite and >= 0, got %g", ErrInvalidParameters, p.DistanceCutoff)
	case !p.Connectivity.Valid():
		return fmt.Errorf("%w: connectivity must be 4 or 8, got %d", ErrInvalidParameters, p.Connectivity)
	}
	return nil
}

// ValidateFor checks the parameters against a known frame size so a bad crop
// is reported once at startup instead of once per frame.
func (p Parameters) ValidateFor(width, height int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := p.Interior(image.Rect(0, 0, width, height))
	return err
}

// Interior returns the crop rectangle inside bounds, in the same coordinate
// space as bounds.
func (p Parameters) Interior(bounds image.Rectangle) (image.Rectangle, error) {
	// image.Rect would swap inverted corners; an oversized crop must fail
	r := image.Rectangle{
		Min: image.Pt(bounds.Min.X+p.CropLeft, bounds.Min.Y+p.CropTop),
		Max: image.Pt(bounds.Max.X-p.CropRight, bounds.Max.Y-p.CropBottom),
	}
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: crop %d/%d/%d/%d leaves no interior in %dx%d frame",
			ErrInvalidGeometry, p.CropTop, p.CropBottom, p.CropLeft, p.CropRight, bounds.Dx(), bounds.Dy())
	}
	return r, nil
}
