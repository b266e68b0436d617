package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tankobon/internal/logging"
)

const (
	progressBarWidth = 10

	packingText = "📦 Packing..."
	sendingText = "📤 Sending..."
	doneText    = "✅ Done"
)

func downloadingText(done, total int) string {
	return "📥 Downloading pages...\n" + progressBar(done, total)
}

// progressBar renders "[█████     ] 6/12".
func progressBar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = done * progressBarWidth / total
	}
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat("█", filled),
		strings.Repeat(" ", progressBarWidth-filled),
		done, total,
	)
}

// progressReporter keeps one status message per job up to date. Edits are
// best effort: they are throttled, deduplicated and never retried, so a slow
// or rate-limited chat cannot hold up the job.
type progressReporter struct {
	transport Transport
	flow      *FlowControl
	chatID    int64
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu        sync.Mutex
	messageID int64
	last      string
}

func newProgressReporter(transport Transport, flow *FlowControl, chatID int64, interval time.Duration, logger *slog.Logger) *progressReporter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &progressReporter{
		transport: transport,
		flow:      flow,
		chatID:    chatID,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

func (p *progressReporter) start(ctx context.Context, text string) {
	var id int64
	err := p.flow.Do(ctx, "send progress", func(ctx context.Context) error {
		var sendErr error
		id, sendErr = p.transport.SendText(ctx, p.chatID, text)
		return sendErr
	})
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("progress message not sent",
				logging.Error(err),
				logging.String(logging.FieldEventType, "progress_send_failed"),
				logging.String(logging.FieldImpact, "requester sees no progress for this job"),
			)
		}
		return
	}
	// The first send consumes the burst so the next edit waits a full interval.
	p.limiter.Allow()
	p.mu.Lock()
	p.messageID = id
	p.last = text
	p.mu.Unlock()
}

// update edits the status message. force bypasses the throttle for edits
// that must land, such as the final page count or a stage change.
func (p *progressReporter) update(ctx context.Context, text string, force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messageID == 0 || text == p.last {
		return
	}
	if !force && !p.limiter.Allow() {
		return
	}
	if err := p.transport.EditText(ctx, p.chatID, p.messageID, text); err != nil {
		p.logger.Debug("progress edit dropped", logging.Error(err))
		return
	}
	p.last = text
}
