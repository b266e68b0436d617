package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tankobon/internal/logging"
	"tankobon/internal/queue"
	"tankobon/internal/services"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.transport == nil || m.pages == nil {
		m.mu.Unlock()
		return errors.New("workflow transport and page resolver not configured")
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, m.logger.With(logging.Int("worker", i+1)))
	}
	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Int("workers", m.workers),
		logging.Int("fetch_budget", m.fetcher.Budget().Size()),
	)
	return nil
}

// Stop cancels in-flight jobs, waits for workers to exit, and fails jobs that
// were admitted but never claimed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel(ErrDaemonStopping)
	m.wg.Wait()
	m.abandonAdmitted(context.Background())
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.NextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextJobError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}
		m.processJob(ctx, job)
	}
}

func (m *Manager) processJob(ctx context.Context, job *queue.Job) {
	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	runCtx := jobCtx
	if m.jobTimeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeoutCause(jobCtx, m.jobTimeout, ErrJobTimeout)
		defer stop()
	}

	m.beginJob(job, cancel)
	outcome := m.orchestrator.Run(runCtx, job)
	m.finishJob(job.ID)

	m.setLastJob(job)
	if outcome.Err != nil {
		m.setLastError(outcome.Err)
	}
	m.publishOutcome(ctx, job, outcome)
}

// beginJob records the running job's cancel func so Cancel can reach it.
func (m *Manager) beginJob(job *queue.Job, cancel context.CancelCauseFunc) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()
	entry, ok := m.active[job.ID]
	if !ok {
		// Queued by an earlier Manager; nobody holds its requester lock.
		m.logger.Warn("claimed job was not admitted by this process",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String(logging.FieldEventType, "job_unadmitted"),
		)
		entry = &activeJob{requesterID: job.RequesterID, release: func() {}}
		m.active[job.ID] = entry
	}
	entry.cancel = cancel
	if entry.cancelled {
		cancel(ErrCancelledByRequester)
	}
}

// finishJob forgets a terminal job and releases its requester lock.
func (m *Manager) finishJob(jobID int64) {
	m.jobsMu.Lock()
	entry := m.active[jobID]
	delete(m.active, jobID)
	m.jobsMu.Unlock()
	if entry != nil {
		entry.release()
	}
}

// abandonAdmitted fails jobs still pending after the workers stopped. Each
// requester is told once per job.
func (m *Manager) abandonAdmitted(ctx context.Context) {
	m.jobsMu.Lock()
	ids := make([]int64, 0, len(m.active))
	for id, entry := range m.active {
		if entry.cancel == nil {
			ids = append(ids, id)
		}
	}
	for _, waiting := range m.waiters {
		for _, cancel := range waiting {
			cancel(ErrDaemonStopping)
		}
	}
	m.jobsMu.Unlock()

	for _, id := range ids {
		changed, err := m.store.FailPending(ctx, id, cancelReason(ErrDaemonStopping))
		if err != nil {
			m.logger.Warn("could not fail pending job on shutdown",
				logging.Int64(logging.FieldJobID, id),
				logging.Error(err),
				logging.String(logging.FieldEventType, "shutdown_fail_pending"),
				logging.String(logging.FieldImpact, "job will be failed on next start"),
			)
			continue
		}
		if changed {
			m.notifyCancelled(ctx, id)
		}
		m.finishJob(id)
	}
}

func (m *Manager) handleNextJobError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.errorRetry):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) notifyCancelled(ctx context.Context, jobID int64) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil || job == nil {
		return
	}
	if err := m.orchestrator.NotifyFailure(ctx, job, services.KindCancelled); err != nil {
		m.logger.Warn("cancellation notice not delivered",
			logging.Int64(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "failure_notice_failed"),
			logging.String(logging.FieldImpact, "requester was not told the job was cancelled"),
		)
	}
}
