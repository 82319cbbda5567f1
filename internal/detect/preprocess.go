package detect

import (
	"fmt"
	"image"

	"github.com/disintegration/gift"
)

// greenOnly replaces every channel with the green one so the grayscale
// setter, whose luma weights sum to 1, stores the green intensity unchanged.
func greenOnly(_, g, _, a float32) (float32, float32, float32, float32) {
	return g, g, g, a
}

// Preprocess crops img by the configured margins, keeps the green channel as
// intensity, and applies a Gaussian blur. The returned map starts at (0,0)
// and measures (w-left-right) x (h-top-bottom).
func Preprocess(img image.Image, p Parameters) (*image.Gray, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	interior, err := p.Interior(bounds)
	if err != nil {
		return nil, err
	}

	filters := []gift.Filter{
		gift.Crop(interior),
		gift.ColorFunc(greenOnly),
	}
	if p.GaussianRadius > 0 {
		filters = append(filters, gift.GaussianBlur(float32(p.GaussianRadius)))
	}

	g := gift.New(filters...)
	dst := image.NewGray(g.Bounds(bounds))
	g.Draw(dst, img)
	return dst, nil
}
