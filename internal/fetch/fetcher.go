package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tankobon/internal/config"
	"tankobon/internal/httpclient"
	"tankobon/internal/logging"
)

// maxPageBytes caps a single page download.
const maxPageBytes = 64 << 20

// Slot holds one page. Index is the 0-based page position and alone decides
// archive order. Exactly one of Data and Err is set after Fetch returns.
type Slot struct {
	Index       int
	URL         string
	Data        []byte
	ContentType string
	Err         *Error
}

// OK reports whether the page downloaded successfully.
func (s Slot) OK() bool {
	return s.Err == nil && len(s.Data) > 0
}

// ProgressFunc receives the number of finished pages (successful or not) and
// the total after every completion.
type ProgressFunc func(done, total int)

// Options configures a Fetcher.
type Options struct {
	Budget    *Budget
	Client    *http.Client
	UserAgent string
	Logger    *slog.Logger
}

// Fetcher downloads page lists under a shared Budget.
type Fetcher struct {
	budget    *Budget
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// New constructs a Fetcher. A nil Budget gets DefaultBudget; a nil Client gets
// http.DefaultClient.
func New(opts Options) *Fetcher {
	if opts.Budget == nil {
		opts.Budget = NewBudget(DefaultBudget)
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Fetcher{
		budget:    opts.Budget,
		client:    opts.Client,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
}

// NewFromConfig builds a Fetcher with its own Budget from the [fetch] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Fetcher {
	client := httpclient.NewStandard(httpclient.Options{
		Timeout:      time.Duration(cfg.Fetch.RequestTimeout) * time.Second,
		RetryMax:     cfg.Fetch.PageRetries,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		Logger:       logger,
	})
	return New(Options{
		Budget:    NewBudget(cfg.Fetch.Concurrency),
		Client:    client,
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    logger,
	})
}

// Budget returns the concurrency budget this Fetcher draws from.
func (f *Fetcher) Budget() *Budget {
	return f.budget
}

// Fetch downloads every URL into a slot at the same index. It never returns
// early on a page failure; inspect the slots or call Summarize. onProgress may
// be nil.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, onProgress ProgressFunc) []Slot {
	slots := make([]Slot, len(urls))
	if len(urls) == 0 {
		return slots
	}
	total := len(urls)

	// Buffered to total so a completion never waits on the progress sink.
	progress := make(chan int, total)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for done := range progress {
			if onProgress != nil {
				onProgress(done, total)
			}
		}
	}()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	for i, pageURL := range urls {
		slots[i] = Slot{Index: i, URL: pageURL}
		wg.Add(1)
		go func(slot *Slot) {
			defer wg.Done()
			f.fetchSlot(ctx, slot)
			mu.Lock()
			done++
			progress <- done
			mu.Unlock()
		}(&slots[i])
	}
	wg.Wait()
	close(progress)
	<-dispatched

	if failures := Failures(slots); len(failures) > 0 {
		f.logger.Debug("page fetch finished with failures",
			logging.Int("pages", total),
			logging.Int("failed", len(failures)),
		)
	}
	return slots
}

func (f *Fetcher) fetchSlot(ctx context.Context, slot *Slot) {
	fail := func(status int, err error) {
		slot.Err = &Error{Index: slot.Index, URL: slot.URL, StatusCode: status, Err: err}
	}

	if err := f.budget.acquire(ctx); err != nil {
		fail(0, err)
		return
	}
	defer f.budget.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, slot.URL, nil)
	if err != nil {
		fail(0, fmt.Errorf("build request: %w", err))
		return
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		fail(0, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		fail(resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
		return
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		fail(0, fmt.Errorf("read body: %w", err))
		return
	}
	if len(data) > maxPageBytes {
		fail(0, fmt.Errorf("page exceeds %d bytes", maxPageBytes))
		return
	}
	if len(data) == 0 {
		fail(0, errEmptyBody)
		return
	}
	slot.Data = data
	slot.ContentType = resp.Header.Get("Content-Type")
}
