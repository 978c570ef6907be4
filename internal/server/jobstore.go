// Copyright Dasan Software Lab, 2026. All rights reserved.

package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// JobState names one phase of a verification job's lifecycle. Transitions
// are strictly pending -> running -> completed or failed.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// defaultJobsDSN keeps the job table in process memory so nothing
// outlives the process.
const defaultJobsDSN = ":memory:"

// ErrJobNotFound is returned when a job ID does not exist.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when a state change does not follow the
// job lifecycle.
var ErrInvalidTransition = errors.New("invalid job state transition")

// Job is one verification run tracked by the API.
type Job struct {
	ID         string    `json:"id"`
	State      JobState  `json:"state"`
	InputPath  string    `json:"-"`
	OutputPath string    `json:"-"`
	TotalRows  int       `json:"total_rows"`
	DoneRows   int       `json:"done_rows"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobStore persists jobs in SQLite. An empty DSN selects an in-memory
// database so no job outlives the process.
type JobStore struct {
	db *sql.DB
}

// NewJobStore opens the job database and creates the schema.
func NewJobStore(dsn string) (*JobStore, error) {
	if dsn == "" {
		dsn = defaultJobsDSN
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening job database: %w", err)
	}
	// An in-memory database exists per connection, so the pool must stay
	// at exactly one.
	db.SetMaxOpenConns(1)

	s := &JobStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating job schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *JobStore) Close() error {
	return s.db.Close()
}

func (s *JobStore) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		input_path TEXT NOT NULL,
		output_path TEXT,
		total_rows INTEGER NOT NULL,
		done_rows INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	return err
}

// Create registers a new pending job for an uploaded input file.
func (s *JobStore) Create(ctx context.Context, inputPath string, totalRows int) (Job, error) {
	now := time.Now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		State:     JobPending,
		InputPath: inputPath,
		TotalRows: totalRows,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, state, input_path, output_path, total_rows, done_rows, error, created_at, updated_at)
		 VALUES (?, ?, ?, '', ?, 0, '', ?, ?)`,
		job.ID, string(job.State), job.InputPath, job.TotalRows,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Job{}, fmt.Errorf("inserting job: %w", err)
	}
	return job, nil
}

// Get returns one job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, state, input_path, output_path, total_rows, done_rows, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// List returns all jobs, newest first.
func (s *JobStore) List(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, input_path, output_path, total_rows, done_rows, error, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkRunning moves a pending job to running.
func (s *JobStore) MarkRunning(ctx context.Context, id string) error {
	return s.transition(ctx, id, JobPending, JobRunning,
		`UPDATE jobs SET state = ?, updated_at = ? WHERE id = ? AND state = ?`)
}

// Progress records how many rows have been processed.
func (s *JobStore) Progress(ctx context.Context, id string, done int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET done_rows = ?, updated_at = ? WHERE id = ? AND state = ?`,
		done, time.Now().UTC().Format(time.RFC3339Nano), id, string(JobRunning))
	if err != nil {
		return fmt.Errorf("updating job progress: %w", err)
	}
	return checkAffected(res)
}

// MarkCompleted moves a running job to completed and records the output
// spreadsheet path.
func (s *JobStore) MarkCompleted(ctx context.Context, id, outputPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, output_path = ?, done_rows = total_rows, updated_at = ?
		 WHERE id = ? AND state = ?`,
		string(JobCompleted), outputPath,
		time.Now().UTC().Format(time.RFC3339Nano), id, string(JobRunning))
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return checkAffected(res)
}

// MarkFailed moves a running job to failed with an explanation.
func (s *JobStore) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(JobFailed), reason,
		time.Now().UTC().Format(time.RFC3339Nano), id, string(JobRunning))
	if err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	return checkAffected(res)
}

func (s *JobStore) transition(ctx context.Context, id string, from, to JobState, query string) error {
	res, err := s.db.ExecContext(ctx, query,
		string(to), time.Now().UTC().Format(time.RFC3339Nano), id, string(from))
	if err != nil {
		return fmt.Errorf("updating job state: %w", err)
	}
	return checkAffected(res)
}

// checkAffected distinguishes a missing job from a lifecycle violation.
// Both surface as zero affected rows; the caller's Get disambiguates, so
// the coarser error is used here.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var state, created, updated string
	err := row.Scan(&job.ID, &state, &job.InputPath, &job.OutputPath,
		&job.TotalRows, &job.DoneRows, &job.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scanning job: %w", err)
	}
	job.State = JobState(state)
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return job, nil
}
