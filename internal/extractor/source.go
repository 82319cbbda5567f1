package extractor

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/bdougie/flashtrap/internal/detect"
	"github.com/bdougie/flashtrap/internal/models"
)

// ImageExtensions lists the file extensions treated as frames.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// IsImage reports whether name has one of the frame extensions.
func IsImage(name string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Listing is the result of enumerating an input directory.
type Listing struct {
	Frames []models.Frame
	// Unresolved holds references whose target could not be reached.
	Unresolved []*detect.FrameError
}

// Enumerate lists the frames directly inside dir, in name order. Regular files
// and symbolic links are both accepted; links are resolved to their target.
// Dangling links are reported in Listing.Unresolved and do not fail the call.
func Enumerate(dir string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to read input directory '%s': %w", dir, err)
	}

	var listing Listing
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !IsImage(name) {
			continue
		}

		path := filepath.Join(dir, name)
		frame := models.Frame{ID: name, Path: path, Resolved: path}

		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				listing.Unresolved = append(listing.Unresolved,
					detect.NewFrameError(name, detect.ErrUnresolvedReference, err))
				continue
			}
			info, err := os.Stat(resolved)
			if err != nil || !info.Mode().IsRegular() {
				listing.Unresolved = append(listing.Unresolved,
					detect.NewFrameError(name, detect.ErrUnresolvedReference, fmt.Errorf("target %s is not a regular file", resolved)))
				continue
			}
			frame.Resolved = resolved
		case entry.Type().IsRegular():
		default:
			continue
		}

		listing.Frames = append(listing.Frames, frame)
	}
	return listing, nil
}

// Load decodes the pixels behind a frame reference.
func Load(frame models.Frame) (image.Image, error) {
	path := frame.Resolved
	if path == "" {
		path = frame.Path
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, detect.NewFrameError(frame.ID, detect.ErrUnresolvedReference, err)
		}
		return nil, detect.NewFrameError(frame.ID, detect.ErrInvalidInput, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, detect.NewFrameError(frame.ID, detect.ErrInvalidInput, fmt.Errorf("decode %s: %w", path, err))
	}
	return img, nil
}

// Dimensions reads the frame size from the image header without decoding
// the pixels.
func Dimensions(frame models.Frame) (int, int, error) {
	path := frame.Resolved
	if path == "" {
		path = frame.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, detect.NewFrameError(frame.ID, detect.ErrUnresolvedReference, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, detect.NewFrameError(frame.ID, detect.ErrInvalidInput, fmt.Errorf("decode header %s: %w", path, err))
	}
	return cfg.Width, cfg.Height, nil
}
