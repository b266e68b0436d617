package queue

import (
	"context"
	"fmt"
	"time"
)

// Depth returns the number of jobs waiting to be claimed.
func (s *Store) Depth(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE status = ?`, StatusPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return count, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Remove deletes finished jobs by id. Jobs that are still pending or
// processing are left untouched so a running daemon never loses track of them.
func (s *Store) Remove(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+2)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusDone, StatusFailed)
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE id IN (`+makePlaceholders(len(ids))+`) AND status IN (?, ?)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("remove jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal deletes every done or failed job.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status IN (?, ?)`, StatusDone, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailInterrupted fails every non-terminal job left over from a previous
// daemon run and returns them so callers can notify each requester once.
// Requester locks do not survive a restart, so pending jobs are failed too.
func (s *Store) FailInterrupted(ctx context.Context, reason string) ([]*Job, error) {
	open := []Status{StatusPending, StatusFetching, StatusPacking, StatusDelivering}
	jobs, err := s.List(ctx, open...)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	timestamp := time.Now().UTC()
	args := []any{StatusFailed, reason, timestamp.Format(time.RFC3339Nano), timestamp.Format(time.RFC3339Nano)}
	for _, status := range open {
		args = append(args, status)
	}
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE status IN (`+makePlaceholders(len(open))+`)`,
		args...,
	); err != nil {
		return nil, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	for _, job := range jobs {
		job.Status = StatusFailed
		job.ErrorMessage = reason
		job.UpdatedAt = timestamp
		job.FinishedAt = &timestamp
	}
	return jobs, nil
}
