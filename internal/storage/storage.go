package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bdougie/flashtrap/internal/models"
)

const batchSize = 10 // Number of results to batch write

// ResultsFileName is the JSON file written into the output directory.
const ResultsFileName = "flash_results.json"

// Storage defines the interface for storing frame results
type Storage interface {
	// AddResult adds a single frame result
	AddResult(ctx context.Context, result models.FrameResult) error

	// Flush ensures all pending results are saved
	Flush() error
}

// Nop discards results. Used when storage is disabled.
type Nop struct{}

func (Nop) AddResult(context.Context, models.FrameResult) error { return nil }
func (Nop) Flush() error                                        { return nil }

// storageImpl batches frame results into a JSON file
type storageImpl struct {
	results   []models.FrameResult
	mu        sync.Mutex
	outputDir string
}

// NewStorage creates a JSON storage writing to <outputDir>/flash_results.json
func NewStorage(outputDir string) *storageImpl {
	return &storageImpl{
		results:   []models.FrameResult{},
		outputDir: outputDir,
	}
}

// Path returns the results file location
func (s *storageImpl) Path() string {
	return filepath.Join(s.outputDir, ResultsFileName)
}

// AddResult adds a result to the batch and flushes if the batch is full
func (s *storageImpl) AddResult(ctx context.Context, result models.FrameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)

	// Write to disk when batch is full
	if len(s.results) >= batchSize {
		if err := s.flush(); err != nil {
			return fmt.Errorf("failed to flush results: %w", err)
		}
	}
	return nil
}

// Flush writes all pending results to disk
func (s *storageImpl) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// Internal flush implementation
func (s *storageImpl) flush() error {
	if len(s.results) == 0 {
		return nil
	}

	resultsFilePath := s.Path()

	existingResults, err := ReadResults(resultsFilePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	allResults := append(existingResults, s.results...)

	if err := os.MkdirAll(filepath.Dir(resultsFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for results: %w", err)
	}

	file, err := os.Create(resultsFilePath)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(allResults); err != nil {
		return err
	}

	s.results = nil // Clear the batch
	return nil
}

// ReadResults loads a results file written by the JSON storage
func ReadResults(path string) ([]models.FrameResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results []models.FrameResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing results: %w", err)
	}
	return results, nil
}
