package bot

import (
	"context"

	"tankobon/internal/logging"
	"tankobon/internal/services"
	"tankobon/internal/session"
	"tankobon/internal/workflow"
)

// submitBatch queues entries in order, one job per selected format, on a
// background goroutine. Submit blocks while the requester has a job in
// flight, so the batch is delivered chapter by chapter. /cancel stops the
// rest of the batch.
func (b *Bot) submitBatch(ctx context.Context, chatID int64, entries []session.Entry) {
	formats := b.sessions.Formats(chatID).Formats()
	batchCtx, id := b.trackBatch(ctx, chatID)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.untrackBatch(chatID, id)
		for _, entry := range entries {
			for _, f := range formats {
				if batchCtx.Err() != nil {
					return
				}
				_, err := b.jobs.Submit(batchCtx, workflow.Request{
					RequesterID: chatID,
					SourceID:    entry.SourceID,
					ChapterID:   entry.ID,
					Title:       entry.Title,
					Format:      f,
				})
				if err == nil {
					continue
				}
				if services.IsCancelled(err) || batchCtx.Err() != nil {
					return
				}
				logging.WithContext(batchCtx, b.logger).Warn("chapter not queued",
					logging.String("title", entry.Title),
					logging.String("format", string(f)),
					logging.Error(err),
					logging.String(logging.FieldEventType, "submit_failed"),
				)
				b.reply(batchCtx, chatID, "❌ "+services.Details(err).Message, nil)
			}
		}
	}()
}

func (b *Bot) trackBatch(ctx context.Context, chatID int64) (context.Context, uint64) {
	batchCtx, cancel := context.WithCancel(ctx)
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	b.batchID++
	if b.batches[chatID] == nil {
		b.batches[chatID] = make(map[uint64]context.CancelFunc)
	}
	b.batches[chatID][b.batchID] = cancel
	return batchCtx, b.batchID
}

func (b *Bot) untrackBatch(chatID int64, id uint64) {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	if cancel, ok := b.batches[chatID][id]; ok {
		cancel()
		delete(b.batches[chatID], id)
	}
	if len(b.batches[chatID]) == 0 {
		delete(b.batches, chatID)
	}
}

// cancelBatches stops the requester's unfinished batches and reports how many
// there were.
func (b *Bot) cancelBatches(chatID int64) int {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	n := len(b.batches[chatID])
	for _, cancel := range b.batches[chatID] {
		cancel()
	}
	return n
}
