package workflow

import (
	"context"
	"fmt"
	"strings"

	"tankobon/internal/logging"
	"tankobon/internal/notifications"
	"tankobon/internal/queue"
	"tankobon/internal/services"
)

// publishOutcome sends the operator alert for a finished job. Cancellations
// are the requester's business and are not published.
func (m *Manager) publishOutcome(ctx context.Context, job *queue.Job, outcome Outcome) {
	ctx = context.WithoutCancel(ctx)
	var (
		event   notifications.Event
		payload notifications.Payload
	)
	switch {
	case outcome.Delivered():
		event = notifications.EventJobCompleted
		payload = notifications.Payload{
			"title":     job.DisplayTitle(),
			"format":    job.Format,
			"pages":     outcome.Pages,
			"requester": job.RequesterID,
		}
	case services.Details(outcome.Err).Kind == services.KindCancelled:
		return
	default:
		event = notifications.EventJobFailed
		payload = notifications.Payload{
			"title":     job.DisplayTitle(),
			"error":     job.ErrorMessage,
			"requester": job.RequesterID,
		}
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		m.logger.Debug("operator notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

// NotifyInterrupted tells each requester, once, which of their jobs were
// failed because a previous run stopped before finishing them.
func (m *Manager) NotifyInterrupted(ctx context.Context, jobs []*queue.Job) {
	if m.transport == nil || len(jobs) == 0 {
		return
	}
	byRequester := make(map[int64][]*queue.Job)
	var order []int64
	for _, job := range jobs {
		if _, seen := byRequester[job.RequesterID]; !seen {
			order = append(order, job.RequesterID)
		}
		byRequester[job.RequesterID] = append(byRequester[job.RequesterID], job)
	}
	for _, requesterID := range order {
		text := interruptedText(byRequester[requesterID])
		err := m.flow.Do(ctx, "send interrupted notice", func(ctx context.Context) error {
			_, err := m.transport.SendText(ctx, requesterID, text)
			return err
		})
		if err != nil {
			m.logger.Warn("interrupted-job notice not delivered",
				logging.Int64(logging.FieldRequesterID, requesterID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "failure_notice_failed"),
				logging.String(logging.FieldImpact, "requester was not told their jobs were dropped"),
			)
		}
	}
}

func interruptedText(jobs []*queue.Job) string {
	if len(jobs) == 1 {
		return failureText(jobs[0], services.KindTransient)
	}
	var b strings.Builder
	b.WriteString("❌ The bot restarted before these chapters were delivered:\n")
	for _, job := range jobs {
		fmt.Fprintf(&b, "• %s\n", job.DisplayTitle())
	}
	b.WriteString("Please request them again.")
	return b.String()
}
