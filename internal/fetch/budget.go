package fetch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultBudget is the number of simultaneous page transfers when none is configured.
const DefaultBudget = 5

// Budget bounds simultaneous page transfers. One Budget is shared by every
// Fetcher call in the process, including those from concurrent jobs.
type Budget struct {
	sem  *semaphore.Weighted
	size int
}

// NewBudget returns a budget of size n. Values below 1 are raised to 1.
func NewBudget(n int) *Budget {
	if n < 1 {
		n = 1
	}
	return &Budget{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Size returns the maximum number of concurrent transfers.
func (b *Budget) Size() int {
	return b.size
}

func (b *Budget) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.sem.Acquire(ctx, 1)
}

func (b *Budget) release() {
	b.sem.Release(1)
}
