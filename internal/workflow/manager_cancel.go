package workflow

import "context"

// Cancel stops every job the requester has admitted, queued or running, and
// aborts any Submit still waiting on the requester lock. It returns how many
// were cancelled.
func (m *Manager) Cancel(ctx context.Context, requesterID int64) (int, error) {
	reason := cancelReason(ErrCancelledByRequester)

	m.jobsMu.Lock()
	var (
		count   int
		pending []int64
	)
	for id, entry := range m.active {
		if entry.requesterID != requesterID || entry.cancelled {
			continue
		}
		// A pending job claimed before FailPending lands is cancelled by beginJob.
		entry.cancelled = true
		count++
		if entry.cancel != nil {
			entry.cancel(ErrCancelledByRequester)
			continue
		}
		pending = append(pending, id)
	}
	for _, cancel := range m.waiters[requesterID] {
		cancel(ErrCancelledByRequester)
		count++
	}
	m.jobsMu.Unlock()

	var firstErr error
	for _, id := range pending {
		changed, err := m.store.FailPending(ctx, id, reason)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if changed {
			m.finishJob(id)
			m.notifyCancelled(ctx, id)
		}
	}
	return count, firstErr
}
