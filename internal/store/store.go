// Package store provides sqlite-backed persistence for reviews and run
// history. Reviews are never deleted; terminal reviews are retained for
// audit.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dcastillo/docrelay/internal/domain"
)

// SQLite persists engine records in a single database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// Open creates (or opens) the database under dataDir and migrates the
// schema.
func Open(dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "docrelay.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLite{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		change_id TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		reviewer TEXT,
		confidence REAL NOT NULL,
		change_set_json TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_change ON reviews(change_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_updated ON reviews(updated_at DESC);

	CREATE TABLE IF NOT EXISTS review_audit (
		review_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		note TEXT,
		PRIMARY KEY (review_id, seq),
		FOREIGN KEY (review_id) REFERENCES reviews(id)
	);

	CREATE TABLE IF NOT EXISTS runs (
		change_id TEXT NOT NULL,
		status TEXT NOT NULL,
		tasks_json TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS publish_jobs (
		id TEXT PRIMARY KEY,
		review_id TEXT NOT NULL,
		destination TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		last_error TEXT,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_publish_review ON publish_jobs(review_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save upserts a review and its full audit log in one transaction. Status
// and audit log are never written independently.
func (s *SQLite) Save(ctx context.Context, r *domain.Review) error {
	changeSet, err := json.Marshal(r.ChangeSet)
	if err != nil {
		return fmt.Errorf("marshal change set: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reviews (id, change_id, source, status, reviewer, confidence, change_set_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			reviewer = excluded.reviewer,
			change_set_json = excluded.change_set_json,
			updated_at = excluded.updated_at`,
		r.ID, r.ChangeID, r.Source, string(r.Status), r.Reviewer, r.Confidence,
		string(changeSet), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_audit WHERE review_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear audit: %w", err)
	}
	for i, entry := range r.AuditLog {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO review_audit (review_id, seq, actor, action, timestamp, note)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, i, entry.Actor, entry.Action, entry.Timestamp, entry.Note)
		if err != nil {
			return fmt.Errorf("save audit entry: %w", err)
		}
	}

	return tx.Commit()
}

// Get loads one review with its audit log.
func (s *SQLite) Get(ctx context.Context, id string) (*domain.Review, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, change_id, source, status, reviewer, confidence, change_set_json, created_at, updated_at
		FROM reviews WHERE id = ?`, id)

	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("review", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT actor, action, timestamp, note
		FROM review_audit WHERE review_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.Actor, &e.Action, &e.Timestamp, &e.Note); err != nil {
			return nil, err
		}
		r.AuditLog = append(r.AuditLog, e)
	}
	return r, rows.Err()
}

// List returns recent reviews ordered by last update, without audit logs.
func (s *SQLite) List(ctx context.Context, limit int) ([]domain.Review, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, change_id, source, status, reviewer, confidence, change_set_json, created_at, updated_at
		FROM reviews ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReview(row scanner) (*domain.Review, error) {
	var (
		r         domain.Review
		status    string
		reviewer  sql.NullString
		changeSet string
	)
	err := row.Scan(&r.ID, &r.ChangeID, &r.Source, &status, &reviewer, &r.Confidence,
		&changeSet, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = domain.ReviewStatus(status)
	r.Reviewer = reviewer.String
	if err := json.Unmarshal([]byte(changeSet), &r.ChangeSet); err != nil {
		return nil, fmt.Errorf("unmarshal change set: %w", err)
	}
	return &r, nil
}

// RunRecord is a persisted summary of one scheduler run.
type RunRecord struct {
	ChangeID   string            `json:"change_id"`
	Status     string            `json:"status"`
	TaskStatus map[string]string `json:"task_status"`
	DurationMs int64             `json:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SaveRun records a completed run summary.
func (s *SQLite) SaveRun(ctx context.Context, rec RunRecord) error {
	tasks, err := json.Marshal(rec.TaskStatus)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (change_id, status, tasks_json, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ChangeID, rec.Status, string(tasks), rec.DurationMs, rec.CreatedAt)
	return err
}

// ListRuns returns recent run summaries.
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT change_id, status, tasks_json, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec   RunRecord
			tasks string
		)
		if err := rows.Scan(&rec.ChangeID, &rec.Status, &tasks, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tasks), &rec.TaskStatus); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveJob records one terminal publish job.
func (s *SQLite) SaveJob(ctx context.Context, job domain.PublishJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publish_jobs (id, review_id, destination, status, attempts, last_error, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		job.ID, job.ReviewID, job.Destination, string(job.Status), job.Attempts,
		job.LastError, job.CompletedAt)
	return err
}

// ListJobs returns publish jobs for one review.
func (s *SQLite) ListJobs(ctx context.Context, reviewID string) ([]domain.PublishJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, review_id, destination, status, attempts, last_error, completed_at
		FROM publish_jobs WHERE review_id = ? ORDER BY destination`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PublishJob
	for rows.Next() {
		var (
			job     domain.PublishJob
			status  string
			lastErr sql.NullString
		)
		if err := rows.Scan(&job.ID, &job.ReviewID, &job.Destination, &status,
			&job.Attempts, &lastErr, &job.CompletedAt); err != nil {
			return nil, err
		}
		job.Status = domain.JobStatus(status)
		job.LastError = lastErr.String
		out = append(out, job)
	}
	return out, rows.Err()
}
