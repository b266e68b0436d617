package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Enqueue inserts a new pending job. Identity fields are copied from the
// argument; the returned job carries the assigned id and timestamps.
func (s *Store) Enqueue(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if strings.TrimSpace(job.SourceID) == "" || strings.TrimSpace(job.ChapterID) == "" {
		return nil, errors.New("job requires source and chapter identifiers")
	}
	if strings.TrimSpace(job.Format) == "" {
		return nil, errors.New("job requires an output format")
	}
	urls, err := encodePageURLs(job.PageURLs)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            requester_id, source_id, chapter_id, title, format, page_urls_json,
            status, progress_done, progress_total, attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`,
		job.RequesterID,
		job.SourceID,
		job.ChapterID,
		nullableString(job.Title),
		job.Format,
		urls,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a job by identifier. It returns nil when the job does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// NextPending claims the oldest pending job by moving it to StatusFetching and
// incrementing its attempt counter. It returns nil when nothing is pending.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	var job *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = attempts + 1, updated_at = ?
             WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY id LIMIT 1)
               AND status = ?
             RETURNING `+jobColumns,
			StatusFetching,
			timestamp,
			StatusPending,
			StatusPending,
		)
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// Update persists mutable job fields.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	urls, err := encodePageURLs(job.PageURLs)
	if err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	_, err = s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET title = ?, page_urls_json = ?, status = ?, error_message = ?,
             progress_done = ?, progress_total = ?, artifact_path = ?,
             updated_at = ?, finished_at = ?
         WHERE id = ?`,
		nullableString(job.Title),
		urls,
		job.Status,
		nullableString(job.ErrorMessage),
		job.ProgressDone,
		job.ProgressTotal,
		nullableString(job.ArtifactPath),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.FinishedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	return nil
}

// UpdateProgress records fetch progress without touching other fields.
func (s *Store) UpdateProgress(ctx context.Context, id int64, done, total int) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET progress_done = ?, progress_total = ?, updated_at = ? WHERE id = ?`,
		done,
		total,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update progress for job %d: %w", id, err)
	}
	return nil
}

// FailPending fails a job only while it is still pending. The boolean reports
// whether the row changed; false means a worker already claimed it.
func (s *Store) FailPending(ctx context.Context, id int64, reason string) (bool, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(reason),
		timestamp,
		timestamp,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("fail pending job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns jobs ordered by id, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
