package workflow

import (
	"context"

	"tankobon/internal/logging"
	"tankobon/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	Workers     int
	FetchBudget int
	ActiveJobs  int
	LastError   string
	LastJob     *queue.Job
	QueueStats  map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastJob := m.lastJob
	m.mu.RUnlock()

	m.jobsMu.Lock()
	active := len(m.active)
	m.jobsMu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	summary := StatusSummary{
		Running:     running,
		Workers:     m.workers,
		FetchBudget: m.fetcher.Budget().Size(),
		ActiveJobs:  active,
		QueueStats:  stats,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		copy := *lastJob
		summary.LastJob = &copy
	}
	return summary
}

// QueueDepth returns the number of jobs waiting to be claimed.
func (m *Manager) QueueDepth(ctx context.Context) (int, error) {
	return m.store.Depth(ctx)
}

// ActiveFor returns how many admitted jobs the requester has not finished.
func (m *Manager) ActiveFor(requesterID int64) int {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()
	count := 0
	for _, entry := range m.active {
		if entry.requesterID == requesterID {
			count++
		}
	}
	return count
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
