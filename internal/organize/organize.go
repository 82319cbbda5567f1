// Package organize flattens a camera card's DCIM tree into one folder per
// capture date.
package organize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bdougie/flashtrap/internal/exifmeta"
	"github.com/bdougie/flashtrap/internal/materialize"
)

// Options configures Organize.
type Options struct {
	// Source is the DCIM folder holding the *MEDIA subfolders.
	Source string
	Dest   string
	// Link places symbolic links to the card instead of copies.
	Link bool
	// Flat puts every photo directly in Dest instead of date subfolders.
	Flat bool
}

// Summary counts what Organize did.
type Summary struct {
	Placed   int
	NoExif   int
	Existing int
	Failed   int
}

// Organize places every .jpg under Source/*MEDIA/ into Dest/YYYYMMDD/ with
// the capture time prepended to the name (YYYYMMDDThhmmss_NAME). Photos
// without an EXIF timestamp keep their name and go directly into Dest.
// Existing destinations are never overwritten.
func Organize(ctx context.Context, opts Options, logger *slog.Logger) (Summary, error) {
	var sum Summary
	if err := os.MkdirAll(opts.Dest, 0755); err != nil {
		return sum, fmt.Errorf("failed to create destination '%s': %w", opts.Dest, err)
	}

	entries, err := os.ReadDir(opts.Source)
	if err != nil {
		return sum, fmt.Errorf("failed to read DCIM folder '%s': %w", opts.Source, err)
	}

	for _, folder := range entries {
		if !folder.IsDir() || !strings.HasSuffix(folder.Name(), "MEDIA") {
			continue
		}
		mediaDir := filepath.Join(opts.Source, folder.Name())
		logger.Info("Processing folder", "folder", mediaDir)

		files, err := os.ReadDir(mediaDir)
		if err != nil {
			logger.Warn("Failed to read media folder", "folder", mediaDir, "error", err)
			continue
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".jpg") {
				continue
			}
			src := filepath.Join(mediaDir, f.Name())
			dst, dated := Destination(src, opts)
			if !dated {
				logger.Warn("EXIF data not found, keeping original name", "file", src)
				sum.NoExif++
			}

			switch err := materialize.Place(src, dst, opts.Link); {
			case err == nil:
				sum.Placed++
			case errors.Is(err, materialize.ErrExists):
				logger.Warn("Destination exists, skipping", "file", src, "dest", dst)
				sum.Existing++
			default:
				logger.Warn("Failed to place photo", "file", src, "dest", dst, "error", err)
				sum.Failed++
			}
		}
	}
	return sum, nil
}

// Destination returns where src goes and whether an EXIF timestamp was found.
func Destination(src string, opts Options) (string, bool) {
	name := filepath.Base(src)
	taken, err := exifmeta.Taken(src)
	if err != nil {
		return filepath.Join(opts.Dest, name), false
	}
	name = taken.Format("20060102T150405") + "_" + name
	if opts.Flat {
		return filepath.Join(opts.Dest, name), true
	}
	return filepath.Join(opts.Dest, taken.Format("20060102"), name), true
}
