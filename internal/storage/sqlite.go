package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bdougie/flashtrap/internal/models"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// StoredCandidate is a candidate as recorded by a database backend.
type StoredCandidate struct {
	models.Candidate
	Kept bool `json:"kept"`
}

// SQLiteStorage keeps run history in a local SQLite file
type SQLiteStorage struct {
	db    *sql.DB
	runID string
}

// OpenSQLite opens (and if needed creates) the database at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// WAL allows concurrent readers but a single writer
	db.SetMaxOpenConns(1)

	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// NewSQLiteStorage opens the database and registers a new run
func NewSQLiteStorage(ctx context.Context, path string, run models.RunInfo) (*SQLiteStorage, error) {
	s, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := s.BeginRun(ctx, run); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// BeginRun inserts the run row; later results are attached to it
func (s *SQLiteStorage) BeginRun(ctx context.Context, run models.RunInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input_dir, started_at, parameters) VALUES (?, ?, ?, ?)`,
		run.ID, run.InputDir, run.StartedAt.UTC().Format(time.RFC3339Nano), string(run.Parameters))
	if err != nil {
		return fmt.Errorf("failed to create run entry: %w", err)
	}
	s.runID = run.ID
	return nil
}

// AddResult stores one frame and its candidates in a single transaction
func (s *SQLiteStorage) AddResult(ctx context.Context, result models.FrameResult) error {
	runID := result.RunID
	if runID == "" {
		runID = s.runID
	}
	if runID == "" {
		return errors.New("no run registered")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var verified sql.NullBool
	if result.Verified != nil {
		verified = sql.NullBool{Bool: *result.Verified, Valid: true}
	}

	var frameRow int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO frames (run_id, frame_id, path, resolved, status, blobs, verified, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, frame_id) DO UPDATE SET
			status = excluded.status,
			blobs = excluded.blobs,
			verified = excluded.verified,
			error = excluded.error
		RETURNING id`,
		runID, result.Frame.ID, result.Frame.Path, result.Frame.Resolved,
		string(result.Status), result.Blobs, verified, result.Error).Scan(&frameRow)
	if err != nil {
		return fmt.Errorf("failed to store frame information: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE frame_row = ?`, frameRow); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}

	kept := keptFlags(result)
	for i, c := range result.Candidates {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO candidates (frame_row, x, y, size, kept) VALUES (?, ?, ?, ?, ?)`,
			frameRow, c.X, c.Y, c.Size, kept[i])
		if err != nil {
			return fmt.Errorf("failed to store candidate: %w", err)
		}
	}

	return tx.Commit()
}

// Flush is a no-op; every result is committed immediately
func (s *SQLiteStorage) Flush() error {
	return nil
}

// FinishRun stamps the completion time of the current run
func (s *SQLiteStorage) FinishRun(ctx context.Context) error {
	if s.runID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), s.runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// LatestRun returns the most recently started run
func (s *SQLiteStorage) LatestRun(ctx context.Context) (models.RunInfo, error) {
	var (
		run       models.RunInfo
		startedAt string
		params    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, input_dir, started_at, parameters FROM runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&run.ID, &run.InputDir, &startedAt, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RunInfo{}, ErrNoRuns
	}
	if err != nil {
		return models.RunInfo{}, fmt.Errorf("failed to query latest run: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if params.Valid {
		run.Parameters = []byte(params.String)
	}
	return run, nil
}

// RunCandidates returns every candidate stored for a run
func (s *SQLiteStorage) RunCandidates(ctx context.Context, runID string) ([]StoredCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.frame_id, c.x, c.y, c.size, c.kept
		FROM candidates c
		JOIN frames f ON c.frame_row = f.id
		WHERE f.run_id = ?
		ORDER BY f.frame_id, c.id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []StoredCandidate
	for rows.Next() {
		var sc StoredCandidate
		if err := rows.Scan(&sc.FrameID, &sc.X, &sc.Y, &sc.Size, &sc.Kept); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// ErrNoRuns is returned when the database holds no run yet.
var ErrNoRuns = errors.New("no runs stored")

// keptFlags reports, for each entry of result.Candidates, whether it survived
// deduplication.
func keptFlags(result models.FrameResult) []bool {
	remaining := make(map[models.Candidate]int, len(result.Kept))
	for _, k := range result.Kept {
		remaining[k]++
	}
	flags := make([]bool, len(result.Candidates))
	for i, c := range result.Candidates {
		if remaining[c] > 0 {
			remaining[c]--
			flags[i] = true
		}
	}
	return flags
}

// CandidatesOf flattens results into stored candidates, the same shape the
// database backends return from RunCandidates.
func CandidatesOf(results []models.FrameResult) []StoredCandidate {
	var out []StoredCandidate
	for _, r := range results {
		for i, kept := range keptFlags(r) {
			out = append(out, StoredCandidate{Candidate: r.Candidates[i], Kept: kept})
		}
	}
	return out
}
