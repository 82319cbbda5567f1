package models

import (
	"encoding/json"
	"sort"
	"time"
)

// Frame represents one enumerated input frame
type Frame struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Resolved string `json:"resolved"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// IsLink reports whether the frame was reached through a symbolic link
func (f Frame) IsLink() bool {
	return f.Resolved != "" && f.Resolved != f.Path
}

// WorkItem represents a frame to be processed
type WorkItem struct {
	Frame    Frame
	FrameNum int
	Total    int
}

// Candidate is a blob centroid in cropped frame coordinates
type Candidate struct {
	FrameID string `json:"frame_id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Size    int    `json:"size"`
}

// FrameStatus tracks where a frame is in the detection pipeline
type FrameStatus string

const (
	StatusPending           FrameStatus = "pending"
	StatusPreprocessed      FrameStatus = "preprocessed"
	StatusTooNoisy          FrameStatus = "too_noisy"
	StatusNoCandidates      FrameStatus = "no_candidates"
	StatusHasCandidates     FrameStatus = "has_candidates"
	StatusValid             FrameStatus = "valid"
	StatusInvalid           FrameStatus = "invalid"
	StatusMaterialized      FrameStatus = "materialized"
	StatusSkippedUnresolved FrameStatus = "skipped_unresolved"
	StatusInvalidInput      FrameStatus = "invalid_input"
)

// Terminal reports whether no further transition is possible
func (s FrameStatus) Terminal() bool {
	switch s {
	case StatusMaterialized, StatusSkippedUnresolved, StatusInvalidInput:
		return true
	}
	return false
}

// Failed reports whether the frame dropped out because of a per-frame error
func (s FrameStatus) Failed() bool {
	return s == StatusSkippedUnresolved || s == StatusInvalidInput
}

// FrameResult represents the outcome of processing one frame
type FrameResult struct {
	RunID      string      `json:"run_id,omitempty"`
	Frame      Frame       `json:"frame"`
	Status     FrameStatus `json:"status"`
	Blobs      int         `json:"blobs"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Kept       []Candidate `json:"kept,omitempty"`
	Verified   *bool       `json:"verified,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// VerdictSet is the set of frame IDs judged to contain a genuine flash.
type VerdictSet map[string]struct{}

// NewVerdictSet builds a set from frame IDs
func NewVerdictSet(ids ...string) VerdictSet {
	vs := make(VerdictSet, len(ids))
	for _, id := range ids {
		vs[id] = struct{}{}
	}
	return vs
}

// Has reports whether id is in the set
func (vs VerdictSet) Has(id string) bool {
	_, ok := vs[id]
	return ok
}

// Len returns the number of frames in the set
func (vs VerdictSet) Len() int {
	return len(vs)
}

// Sorted returns the frame IDs in lexical order
func (vs VerdictSet) Sorted() []string {
	ids := make([]string, 0, len(vs))
	for id := range vs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FrameSearchResult represents a stored candidate near a queried position
type FrameSearchResult struct {
	RunID    string  `json:"run_id"`
	FrameID  string  `json:"frame_id"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Distance float64 `json:"distance"`
}

// RunInfo identifies one detection run over an input directory
type RunInfo struct {
	ID         string          `json:"id"`
	InputDir   string          `json:"input_dir"`
	StartedAt  time.Time       `json:"started_at"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}
