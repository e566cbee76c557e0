// Package ingeststore provides persistent storage for bundle ingest job state using SQLite.
package ingeststore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// JobStatus represents the current state of an ingest job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobProgress represents the progress of an ingest job.
type JobProgress struct {
	Phase string `json:"phase"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// IngestJob represents one bundle upload being turned into a live dataset.
// PayloadPath points at the spooled upload on disk; it is internal state and
// never serialized to clients.
type IngestJob struct {
	ID          string      `json:"job_id"`
	DatasetID   string      `json:"dataset_id"`
	Status      JobStatus   `json:"status"`
	Filename    string      `json:"filename,omitempty"`
	SizeBytes   int64       `json:"size_bytes"`
	PayloadPath string      `json:"-"`
	Progress    JobProgress `json:"progress"`
	Points      int         `json:"points"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Store provides persistent storage for ingest jobs using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a new SQLite-based ingest store.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingest_jobs (
		job_id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		status TEXT NOT NULL,
		filename TEXT DEFAULT '',
		size_bytes INTEGER DEFAULT 0,
		payload_path TEXT DEFAULT '',
		phase TEXT DEFAULT '',
		done INTEGER DEFAULT 0,
		total INTEGER DEFAULT 0,
		points INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ingest_jobs_dataset ON ingest_jobs(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_ingest_jobs_status ON ingest_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_ingest_jobs_finished ON ingest_jobs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateJob creates a new job record with status=queued.
func (s *Store) CreateJob(job *IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO ingest_jobs (job_id, dataset_id, status, filename, size_bytes, payload_path, phase, done, total, points, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.DatasetID,
		string(job.Status),
		job.Filename,
		job.SizeBytes,
		job.PayloadPath,
		job.Progress.Phase,
		job.Progress.Done,
		job.Progress.Total,
		job.Points,
		job.Error,
		job.CreatedAt.Format(time.RFC3339),
		nil,
		nil,
	)
	return err
}

// GetJob retrieves a job by ID. Returns (nil, nil) when the job does not exist.
func (s *Store) GetJob(jobID string) (*IngestJob, error) {
	row := s.db.QueryRow(`
		SELECT job_id, dataset_id, status, filename, size_bytes, payload_path, phase, done, total, points, error, created_at, started_at, finished_at
		FROM ingest_jobs WHERE job_id = ?
	`, jobID)

	var job IngestJob
	var createdAtStr string
	var startedAtStr, finishedAtStr sql.NullString

	err := row.Scan(
		&job.ID,
		&job.DatasetID,
		&job.Status,
		&job.Filename,
		&job.SizeBytes,
		&job.PayloadPath,
		&job.Progress.Phase,
		&job.Progress.Done,
		&job.Progress.Total,
		&job.Points,
		&job.Error,
		&createdAtStr,
		&startedAtStr,
		&finishedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if startedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, startedAtStr.String)
		job.StartedAt = &t
	}
	if finishedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
		job.FinishedAt = &t
	}

	return &job, nil
}

// UpdateJobStatus updates the job status and error message. Terminal statuses
// record a finish time unless one is already set.
func (s *Store) UpdateJobStatus(jobID string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finishedAt *string
	if status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled {
		t := time.Now().Format(time.RFC3339)
		finishedAt = &t
	}

	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET status = ?, error = ?, finished_at = COALESCE(?, finished_at)
		WHERE job_id = ?
	`, string(status), errMsg, finishedAt, jobID)
	return err
}

// UpdateJobStarted marks a job as running with start time.
func (s *Store) UpdateJobStarted(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET status = ?, started_at = ?
		WHERE job_id = ?
	`, string(JobStatusRunning), now, jobID)
	return err
}

// UpdateJobProgress updates the progress fields.
func (s *Store) UpdateJobProgress(jobID string, phase string, done, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET phase = ?, done = ?, total = ?
		WHERE job_id = ?
	`, phase, done, total, jobID)
	return err
}

// UpdateJobPoints records how many points the ingested dataset carries.
func (s *Store) UpdateJobPoints(jobID string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET points = ?
		WHERE job_id = ?
	`, points, jobID)
	return err
}

// ListJobsByDataset returns all jobs for a dataset, newest first.
func (s *Store) ListJobsByDataset(datasetID string) ([]*IngestJob, error) {
	rows, err := s.db.Query(`
		SELECT job_id, dataset_id, status, filename, size_bytes, payload_path, phase, done, total, points, error, created_at, started_at, finished_at
		FROM ingest_jobs WHERE dataset_id = ?
		ORDER BY created_at DESC
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// ListQueuedJobs returns all queued jobs (for restart recovery).
func (s *Store) ListQueuedJobs() ([]*IngestJob, error) {
	rows, err := s.db.Query(`
		SELECT job_id, dataset_id, status, filename, size_bytes, payload_path, phase, done, total, points, error, created_at, started_at, finished_at
		FROM ingest_jobs WHERE status = ?
		ORDER BY created_at ASC
	`, string(JobStatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// MarkRunningAsFailed marks all running jobs as failed (for restart recovery).
func (s *Store) MarkRunningAsFailed(errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`, string(JobStatusFailed), errMsg, now, string(JobStatusRunning))
	return err
}

// DeleteExpiredJobs deletes finished jobs older than the retention window.
func (s *Store) DeleteExpiredJobs(retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention).Format(time.RFC3339)

	result, err := s.db.Exec(`
		DELETE FROM ingest_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// DeleteJob deletes a job record.
func (s *Store) DeleteJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM ingest_jobs WHERE job_id = ?", jobID)
	return err
}

func (s *Store) scanJobs(rows *sql.Rows) ([]*IngestJob, error) {
	var jobs []*IngestJob
	for rows.Next() {
		var job IngestJob
		var createdAtStr string
		var startedAtStr, finishedAtStr sql.NullString

		err := rows.Scan(
			&job.ID,
			&job.DatasetID,
			&job.Status,
			&job.Filename,
			&job.SizeBytes,
			&job.PayloadPath,
			&job.Progress.Phase,
			&job.Progress.Done,
			&job.Progress.Total,
			&job.Points,
			&job.Error,
			&createdAtStr,
			&startedAtStr,
			&finishedAtStr,
		)
		if err != nil {
			return nil, err
		}

		job.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
		if startedAtStr.Valid {
			t, _ := time.Parse(time.RFC3339, startedAtStr.String)
			job.StartedAt = &t
		}
		if finishedAtStr.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
			job.FinishedAt = &t
		}

		jobs = append(jobs, &job)
	}
	return jobs, nil
}
