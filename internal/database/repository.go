// Package database records analysis-run bookkeeping in Postgres. Insight
// output itself is never persisted; only job metadata is.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/graphintel/insight-engine/internal/config"
)

// Connection wraps the database connection
type Connection struct {
	db     *sql.DB
	logger *slog.Logger
}

// Repository provides analysis-job operations
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

// AnalysisJob represents one analysis run
type AnalysisJob struct {
	ID              string     `json:"id"`
	Operation       string     `json:"operation"`
	Status          string     `json:"status"`
	SnapshotVersion int64      `json:"snapshot_version"`
	InsightCount    int        `json:"insight_count"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Job status values
const (
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ErrJobNotFound is returned when a job id has no record.
var ErrJobNotFound = errors.New("analysis job not found")

// NewConnection creates a new database connection
func NewConnection(cfg config.DatabaseConfig, logger *slog.Logger) (*Connection, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections / 2)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")

	return &Connection{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.db.Close()
}

// RunMigrations runs database migrations
func RunMigrations(databaseURL, migrationsPath string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// NewRepository creates a new repository
func NewRepository(conn *Connection, logger *slog.Logger) *Repository {
	return &Repository{
		db:     conn.db,
		logger: logger,
	}
}

// CreateAnalysisJob creates a new analysis job record
func (r *Repository) CreateAnalysisJob(ctx context.Context, job *AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (id, operation, status, snapshot_version, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Operation, job.Status, job.SnapshotVersion, job.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create analysis job: %w", err)
	}

	r.logger.Info("Analysis job created", "job_id", job.ID, "operation", job.Operation)
	return nil
}

// CompleteAnalysisJob marks a job completed or failed
func (r *Repository) CompleteAnalysisJob(ctx context.Context, job *AnalysisJob) error {
	query := `
		UPDATE analysis_jobs
		SET status = $2, insight_count = $3, error = $4, completed_at = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Status, job.InsightCount, job.Error, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update analysis job: %w", err)
	}

	return nil
}

// GetAnalysisJob retrieves an analysis job by id
func (r *Repository) GetAnalysisJob(ctx context.Context, jobID string) (*AnalysisJob, error) {
	query := `
		SELECT id, operation, status, snapshot_version, insight_count,
			   COALESCE(error, ''), started_at, completed_at
		FROM analysis_jobs
		WHERE id = $1
	`

	var job AnalysisJob
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Operation, &job.Status, &job.SnapshotVersion,
		&job.InsightCount, &job.Error, &job.StartedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis job %s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("failed to get analysis job: %w", err)
	}

	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

// ListAnalysisJobs lists recent analysis jobs, optionally filtered by
// status
func (r *Repository) ListAnalysisJobs(ctx context.Context, status string, limit, offset int) ([]*AnalysisJob, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		query := `
			SELECT id, operation, status, snapshot_version, insight_count,
				   COALESCE(error, ''), started_at, completed_at
			FROM analysis_jobs
			WHERE status = $1
			ORDER BY started_at DESC
			LIMIT $2 OFFSET $3
		`
		rows, err = r.db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := `
			SELECT id, operation, status, snapshot_version, insight_count,
				   COALESCE(error, ''), started_at, completed_at
			FROM analysis_jobs
			ORDER BY started_at DESC
			LIMIT $1 OFFSET $2
		`
		rows, err = r.db.QueryContext(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*AnalysisJob
	for rows.Next() {
		var job AnalysisJob
		var completedAt sql.NullTime
		if err := rows.Scan(
			&job.ID, &job.Operation, &job.Status, &job.SnapshotVersion,
			&job.InsightCount, &job.Error, &job.StartedAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis job: %w", err)
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}
