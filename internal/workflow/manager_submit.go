package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tankobon/internal/archive"
	"tankobon/internal/logging"
	"tankobon/internal/queue"
	"tankobon/internal/services"
)

const waitNoticeText = "⏳ Your previous chapter is still being prepared. This one will start as soon as it is delivered."

// Request describes one chapter to deliver in one format.
type Request struct {
	RequesterID int64
	SourceID    string
	ChapterID   string
	Title       string
	Format      archive.Format
}

// Submit admits a job for the requester and queues it. It blocks while the
// requester has another job in flight; if that wait passes wait_notice the
// requester is told once. The requester lock stays held until the job
// reaches a terminal status.
func (m *Manager) Submit(ctx context.Context, req Request) (*queue.Job, error) {
	if strings.TrimSpace(req.ChapterID) == "" || strings.TrimSpace(req.SourceID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "submit job", "A source and chapter are required", nil)
	}
	if !m.packers.Supports(req.Format) {
		return nil, services.Wrap(services.ErrValidation, "", "submit job",
			fmt.Sprintf("%s output is not supported", req.Format.Label()), nil)
	}

	release, err := m.admit(ctx, req.RequesterID)
	if err != nil {
		return nil, err
	}

	job, err := m.store.Enqueue(ctx, &queue.Job{
		RequesterID: req.RequesterID,
		SourceID:    req.SourceID,
		ChapterID:   req.ChapterID,
		Title:       req.Title,
		Format:      string(req.Format),
	})
	if err != nil {
		release()
		return nil, services.Wrap(services.ErrTransient, "", "enqueue job", "Could not queue the chapter", err)
	}

	m.jobsMu.Lock()
	m.active[job.ID] = &activeJob{requesterID: req.RequesterID, release: release}
	m.jobsMu.Unlock()
	m.signal()

	logging.WithContext(services.WithJobID(services.WithRequester(ctx, req.RequesterID), job.ID), m.logger).Info(
		"job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String("title", job.DisplayTitle()),
		logging.String("source", job.SourceID),
		logging.String("format", job.Format),
	)
	return job, nil
}

func (m *Manager) admit(ctx context.Context, requesterID int64) (func(), error) {
	if release, ok := m.locks.TryAcquire(requesterID); ok {
		return release, nil
	}

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	id := m.addWaiter(requesterID, cancel)
	defer m.removeWaiter(requesterID, id)

	if m.waitNotice > 0 && m.transport != nil {
		timer := time.AfterFunc(m.waitNotice, func() {
			err := m.flow.Do(waitCtx, "send wait notice", func(ctx context.Context) error {
				_, err := m.transport.SendText(ctx, requesterID, waitNoticeText)
				return err
			})
			if err != nil && waitCtx.Err() == nil {
				m.logger.Debug("wait notice not sent", logging.Error(err))
			}
		})
		defer timer.Stop()
	}

	release, err := m.locks.Acquire(waitCtx, requesterID)
	if err != nil {
		return nil, services.Wrap(services.ErrCancelled, "", "admit job", cancelMessage(waitCtx), context.Cause(waitCtx))
	}
	return release, nil
}

func (m *Manager) addWaiter(requesterID int64, cancel context.CancelCauseFunc) uint64 {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()
	m.waiterID++
	if m.waiters[requesterID] == nil {
		m.waiters[requesterID] = make(map[uint64]context.CancelCauseFunc)
	}
	m.waiters[requesterID][m.waiterID] = cancel
	return m.waiterID
}

func (m *Manager) removeWaiter(requesterID int64, id uint64) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()
	delete(m.waiters[requesterID], id)
	if len(m.waiters[requesterID]) == 0 {
		delete(m.waiters, requesterID)
	}
}
