package detect

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry means the crop margins leave no interior. Fatal for the run.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrInvalidParameters means a parameter is out of range. Fatal for the run.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInvalidInput means a frame's pixel data is unusable. The frame is skipped.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnresolvedReference means a frame reference does not point at a readable file.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrPoolFrozen is returned when appending to a pool after the barrier.
	ErrPoolFrozen = errors.New("candidate pool is frozen")
)

// FrameError ties a per-frame failure to the frame it happened on.
type FrameError struct {
	FrameID string
	Kind    error
	Err     error
}

// NewFrameError wraps err for frameID under one of the sentinel kinds.
func NewFrameError(frameID string, kind, err error) *FrameError {
	return &FrameError{FrameID: frameID, Kind: kind, Err: err}
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("frame %s: %v", e.FrameID, e.Kind)
	}
	return fmt.Sprintf("frame %s: %v: %v", e.FrameID, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *FrameError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsFatal reports whether err must abort the whole run rather than one frame.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidGeometry) || errors.Is(err, ErrInvalidParameters)
}
