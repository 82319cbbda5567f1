package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/flashtrap/internal/models"
)

// PostgresConfig holds connection details for PostgreSQL
type PostgresConfig struct {
	// URL, when set, is used as is and the other fields are ignored.
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ConnString builds the pgx connection string
func (c PostgresConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}

// PostgresStorage manages interaction with PostgreSQL. Candidate positions
// are stored as pgvector points so hotspots can be searched across runs.
type PostgresStorage struct {
	pool  *pgxpool.Pool
	runID string
}

// NewPostgresStorage creates a new PostgreSQL storage connection and registers the run
func NewPostgresStorage(ctx context.Context, config PostgresConfig, run models.RunInfo) (*PostgresStorage, error) {
	// Connect to PostgreSQL
	pool, err := pgxpool.New(ctx, config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &PostgresStorage{pool: pool}

	if run.ID != "" {
		if err := storage.getOrCreateRun(ctx, run); err != nil {
			pool.Close()
			return nil, err
		}
		storage.runID = run.ID
	}

	return storage, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// getOrCreateRun gets an existing run entry or creates a new one
func (s *PostgresStorage) getOrCreateRun(ctx context.Context, run models.RunInfo) error {
	var id string
	err := s.pool.QueryRow(ctx,
		"SELECT id::text FROM runs WHERE id = $1",
		run.ID).Scan(&id)

	if err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("error checking for existing run: %w", err)
	}

	params := run.Parameters
	if len(params) == 0 {
		params = []byte("{}")
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO runs (id, input_dir, started_at, parameters) VALUES ($1, $2, $3, $4)",
		run.ID, run.InputDir, run.StartedAt, params)
	if err != nil {
		return fmt.Errorf("failed to create run entry: %w", err)
	}
	return nil
}

// AddResult adds a frame result and its candidates to the database
func (s *PostgresStorage) AddResult(ctx context.Context, result models.FrameResult) error {
	runID := result.RunID
	if runID == "" {
		runID = s.runID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var frameRow int
	err = tx.QueryRow(ctx,
		`INSERT INTO frames
		(run_id, frame_id, path, resolved, status, blobs, verified, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, frame_id) DO UPDATE SET
			status = EXCLUDED.status,
			blobs = EXCLUDED.blobs,
			verified = EXCLUDED.verified,
			error = EXCLUDED.error
		RETURNING id`,
		runID, result.Frame.ID, result.Frame.Path, result.Frame.Resolved,
		string(result.Status), result.Blobs, result.Verified, result.Error, time.Now()).Scan(&frameRow)
	if err != nil {
		return fmt.Errorf("failed to store frame information: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM candidates WHERE frame_row = $1", frameRow); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}

	kept := keptFlags(result)
	for i, c := range result.Candidates {
		_, err = tx.Exec(ctx,
			`INSERT INTO candidates
			(frame_row, x, y, size, kept, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			frameRow, c.X, c.Y, c.Size, kept[i], position(c))
		if err != nil {
			return fmt.Errorf("failed to store candidate: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// FinishRun stamps the completion time of the current run
func (s *PostgresStorage) FinishRun(ctx context.Context) error {
	if s.runID == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, "UPDATE runs SET finished_at = $1 WHERE id = $2", time.Now(), s.runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func position(c models.Candidate) pgvector.Vector {
	return pgvector.NewVector([]float32{float32(c.X), float32(c.Y)})
}

// SearchHotspots finds stored candidates nearest to (x, y) across all runs.
// Frames that keep flashing at the same spot over many nights point at a
// fixed artifact in the camera's field of view.
func (s *PostgresStorage) SearchHotspots(ctx context.Context, x, y, limit int) ([]models.FrameSearchResult, error) {
	query := position(models.Candidate{X: x, Y: y})

	rows, err := s.pool.Query(ctx,
		`SELECT f.run_id::text, f.frame_id, c.x, c.y,
        c.position <-> $1 AS distance
        FROM candidates c
        JOIN frames f ON c.frame_row = f.id
        ORDER BY c.position <-> $1
        LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search hotspots: %w", err)
	}
	defer rows.Close()

	var results []models.FrameSearchResult
	for rows.Next() {
		var result models.FrameSearchResult
		if err := rows.Scan(&result.RunID, &result.FrameID,
			&result.X, &result.Y, &result.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// RunCandidates returns every candidate stored for a run
func (s *PostgresStorage) RunCandidates(ctx context.Context, runID string) ([]StoredCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.frame_id, c.x, c.y, c.size, c.kept
        FROM candidates c
        JOIN frames f ON c.frame_row = f.id
        WHERE f.run_id = $1
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

// InitSchema creates the database schema if it doesn't exist
func InitSchema(ctx context.Context, config PostgresConfig) error {
	conn, err := pgx.Connect(ctx, config.ConnString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	// Check if vector extension exists
	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	// Create vector extension if it doesn't exist
	if !exists {
		_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
		if err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	// Create tables
	_, err = conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS runs (
            id UUID PRIMARY KEY,
            input_dir TEXT NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ,
            parameters JSONB NOT NULL DEFAULT '{}'
        );

        CREATE TABLE IF NOT EXISTS frames (
            id SERIAL PRIMARY KEY,
            run_id UUID REFERENCES runs(id) ON DELETE CASCADE,
            frame_id VARCHAR(255) NOT NULL,
            path TEXT NOT NULL,
            resolved TEXT,
            status VARCHAR(32) NOT NULL,
            blobs INTEGER NOT NULL DEFAULT 0,
            verified BOOLEAN,
            error TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(run_id, frame_id)
        );

        CREATE TABLE IF NOT EXISTS candidates (
            id SERIAL PRIMARY KEY,
            frame_row INTEGER REFERENCES frames(id) ON DELETE CASCADE,
            x INTEGER NOT NULL,
            y INTEGER NOT NULL,
            size INTEGER NOT NULL,
            kept BOOLEAN NOT NULL,
            position vector(2)
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	// Create indexes
	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_frames_run_id ON frames(run_id);
        CREATE INDEX IF NOT EXISTS idx_candidates_frame_row ON candidates(frame_row);
        CREATE INDEX IF NOT EXISTS idx_candidates_position ON candidates USING ivfflat (position vector_l2_ops) WITH (lists = 100);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
