// Package materialize places frames judged to contain a flash into the
// output folder.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bdougie/flashtrap/internal/models"
)

// Action is what happens to a valid frame.
type Action string

const (
	ActionCopy Action = "copy"
	ActionMove Action = "move"
	ActionLink Action = "link"
)

// ParseAction converts a flag or env value to an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCopy, ActionMove, ActionLink:
		return Action(s), nil
	case "":
		return ActionCopy, nil
	}
	return "", fmt.Errorf("unknown action %q (want copy, move or link)", s)
}

// DefaultDirName is the output folder created inside the input directory.
const DefaultDirName = "_flash"

// Options configures a Materializer.
type Options struct {
	Dest   string
	Action Action
	// LinkOnly places a symbolic link to the underlying file instead of its
	// bytes. With ActionMove it only applies to inputs that are themselves
	// links; a regular input file is always moved.
	LinkOnly bool
}

// Materializer writes frames to the destination directory.
type Materializer struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and creates the destination directory.
func New(opts Options, logger *slog.Logger) (*Materializer, error) {
	if opts.Dest == "" {
		return nil, errors.New("destination directory is required")
	}
	if _, err := ParseAction(string(opts.Action)); err != nil {
		return nil, err
	}
	if opts.Action == "" {
		opts.Action = ActionCopy
	}
	if err := os.MkdirAll(opts.Dest, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination '%s': %w", opts.Dest, err)
	}
	return &Materializer{opts: opts, logger: logger}, nil
}

// Dest returns the destination directory.
func (m *Materializer) Dest() string {
	return m.opts.Dest
}

// Materialize applies the configured action to one frame and returns the
// path written.
func (m *Materializer) Materialize(frame models.Frame) (string, error) {
	source := frame.Resolved
	if source == "" {
		source = frame.Path
	}
	dst := filepath.Join(m.opts.Dest, frame.ID)

	switch {
	case m.opts.Action == ActionMove && !frame.IsLink():
		// the input is the only copy, so a link to it would dangle after the remove
		if err := os.Rename(source, dst); err == nil {
			return dst, nil
		}
		// cross-device: fall back to copy and remove
		if err := copyFile(source, dst); err != nil {
			return "", err
		}
	case m.opts.Action == ActionLink || m.opts.LinkOnly:
		if err := link(source, dst); err != nil {
			return "", err
		}
	default:
		if err := copyFile(source, dst); err != nil {
			return "", err
		}
	}

	if m.opts.Action == ActionMove {
		if err := os.Remove(frame.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return dst, fmt.Errorf("failed to remove input reference '%s': %w", frame.Path, err)
		}
	}
	return dst, nil
}

// MaterializeAll handles every frame whose ID is in verdicts and returns the
// IDs that were placed. Failures are logged per frame and joined into the
// returned error.
func (m *Materializer) MaterializeAll(ctx context.Context, frames []models.Frame, verdicts models.VerdictSet) ([]string, error) {
	var (
		errs []error
		done []string
	)
	for _, frame := range frames {
		if !verdicts.Has(frame.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return done, err
		}
		dst, err := m.Materialize(frame)
		if err != nil {
			m.logger.Warn("Failed to materialize frame",
				"frame", frame.ID,
				"error", err)
			errs = append(errs, fmt.Errorf("frame %s: %w", frame.ID, err))
			continue
		}
		m.logger.Debug("Materialized frame",
			"frame", frame.ID,
			"action", m.opts.Action,
			"dest", dst)
		done = append(done, frame.ID)
	}
	return done, errors.Join(errs...)
}

// link creates dst pointing at the absolute source path. An existing link to
// the same target is left alone.
func link(source, dst string) error {
	abs, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("failed to resolve '%s': %w", source, err)
	}
	if existing, err := os.Readlink(dst); err == nil {
		if existing == abs {
			return nil
		}
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("failed to replace link '%s': %w", dst, err)
		}
	}
	if err := os.Symlink(abs, dst); err != nil {
		return fmt.Errorf("failed to link '%s' -> '%s': %w", dst, abs, err)
	}
	return nil
}

// copyFile writes source to a temp file next to dst and renames it into
// place so a partial copy is never visible under the final name.
func copyFile(source, dst string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", source, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy '%s': %w", source, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to place '%s': %w", dst, err)
	}
	return nil
}

// ErrExists is returned by Place when dst is already taken.
var ErrExists = errors.New("destination exists")

// Place writes source to dst as a symbolic link or as a copy, creating the
// parent directory. Unlike Materialize it never replaces an existing file.
func Place(source, dst string, asLink bool) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s: %w", dst, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", dst, err)
	}
	if asLink {
		return link(source, dst)
	}
	return copyFile(source, dst)
}
