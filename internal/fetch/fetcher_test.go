package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"tankobon/internal/fetch"
	"tankobon/internal/testsupport"
)

// stubTransport serves every request from memory and tracks how many are in
// flight at once.
type stubTransport struct {
	delay  time.Duration
	status map[string]int

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    int
	seen     chan struct{}
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.inFlight++
	s.calls++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()
	if s.seen != nil {
		s.seen <- struct{}{}
	}
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	code := http.StatusOK
	if c, ok := s.status[req.URL.Path]; ok {
		code = c
	}
	body := "page:" + req.URL.Path
	return &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Header:     http.Header{"Content-Type": []string{"image/jpeg"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (s *stubTransport) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

func pageURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://pages.test/p/%02d.jpg", i+1)
	}
	return urls
}

func newFetcher(budget int, transport http.RoundTripper) *fetch.Fetcher {
	return fetch.New(fetch.Options{
		Budget: fetch.NewBudget(budget),
		Client: &http.Client{Transport: transport},
	})
}

func TestFetchNeverExceedsBudget(t *testing.T) {
	for _, budget := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			stub := &stubTransport{delay: 15 * time.Millisecond}
			f := newFetcher(budget, stub)

			slots := f.Fetch(context.Background(), pageURLs(12), nil)
			if len(slots) != 12 {
				t.Fatalf("got %d slots, want 12", len(slots))
			}
			if peak := stub.Peak(); peak > budget || peak < 1 {
				t.Fatalf("peak concurrency %d outside [1,%d]", peak, budget)
			}
			if err := fetch.Summarize(slots); err != nil {
				t.Fatalf("unexpected failure: %v", err)
			}
		})
	}
}

func TestFetchSharedBudgetAcrossCalls(t *testing.T) {
	stub := &stubTransport{delay: 20 * time.Millisecond}
	f := newFetcher(4, stub)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Fetch(context.Background(), pageURLs(8), nil)
		}()
	}
	wg.Wait()

	if peak := stub.Peak(); peak > 4 {
		t.Fatalf("peak concurrency %d exceeds shared budget 4", peak)
	}
}

func TestFetchPreservesIndexOrder(t *testing.T) {
	server := testsupport.NewPageServer(t, testsupport.PageServerOptions{Pages: 12, Delay: 5 * time.Millisecond})
	f := fetch.New(fetch.Options{Budget: fetch.NewBudget(5)})

	urls := server.URLs()
	slots := f.Fetch(context.Background(), urls, nil)
	for i, slot := range slots {
		if slot.Index != i || slot.URL != urls[i] {
			t.Fatalf("slot %d = {%d %s}, want {%d %s}", i, slot.Index, slot.URL, i, urls[i])
		}
		if !slot.OK() || !bytes.Equal(slot.Data, server.Image()) {
			t.Fatalf("slot %d did not receive page bytes", i)
		}
		if slot.ContentType != "image/png" {
			t.Fatalf("slot %d content type %q", i, slot.ContentType)
		}
	}
	if server.Peak() > 5 {
		t.Fatalf("server saw %d concurrent requests", server.Peak())
	}
}

func TestFetchFailureDoesNotAbortSiblings(t *testing.T) {
	stub := &stubTransport{status: map[string]int{"/p/08.jpg": http.StatusNotFound}}
	f := newFetcher(5, stub)

	slots := f.Fetch(context.Background(), pageURLs(12), nil)

	failures := fetch.Failures(slots)
	if len(failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(failures))
	}
	if failures[0].Index != 7 || failures[0].StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected failure: %+v", failures[0])
	}
	for i, slot := range slots {
		if i == 7 {
			if slot.OK() || slot.Data != nil {
				t.Fatal("failed slot must not carry data")
			}
			continue
		}
		if !slot.OK() {
			t.Fatalf("sibling slot %d failed: %v", i, slot.Err)
		}
	}
	if stub.calls != 12 {
		t.Fatalf("transport saw %d calls, want 12", stub.calls)
	}

	err := fetch.Summarize(slots)
	if err == nil || err.Error() != "page 8 of 12: HTTP 404" {
		t.Fatalf("Summarize = %v", err)
	}
	var pageErr *fetch.Error
	if !errors.As(err, &pageErr) || pageErr.Index != 7 {
		t.Fatalf("summary does not unwrap to page error: %v", err)
	}
}

func TestFetchEmptyInput(t *testing.T) {
	f := newFetcher(5, &stubTransport{})
	calls := 0
	slots := f.Fetch(context.Background(), nil, func(int, int) { calls++ })
	if len(slots) != 0 {
		t.Fatalf("got %d slots for empty input", len(slots))
	}
	if calls != 0 {
		t.Fatalf("progress called %d times for empty input", calls)
	}
}

func TestFetchMissingPageReportsStatus(t *testing.T) {
	server := testsupport.NewPageServer(t, testsupport.PageServerOptions{Pages: 1})
	f := fetch.New(fetch.Options{})
	slots := f.Fetch(context.Background(), []string{server.URL + "/pages/0002.png"}, nil)
	if slots[0].OK() || slots[0].Err.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected slot: %+v", slots[0])
	}
}

func TestFetchProgressIsMonotonicAndDrained(t *testing.T) {
	stub := &stubTransport{delay: 2 * time.Millisecond, status: map[string]int{"/p/03.jpg": http.StatusBadGateway}}
	f := newFetcher(3, stub)

	var (
		mu   sync.Mutex
		seen [][2]int
	)
	slots := f.Fetch(context.Background(), pageURLs(9), func(done, total int) {
		mu.Lock()
		seen = append(seen, [2]int{done, total})
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(slots) {
		t.Fatalf("progress called %d times, want %d", len(seen), len(slots))
	}
	for i, call := range seen {
		if call[0] != i+1 || call[1] != 9 {
			t.Fatalf("progress call %d = %v, want [%d 9]", i, call, i+1)
		}
	}
}

func TestFetchSlowProgressSinkDoesNotStallTransfers(t *testing.T) {
	const pages = 6
	stub := &stubTransport{seen: make(chan struct{}, pages)}
	f := newFetcher(1, stub)

	release := make(chan struct{})
	first := true
	done := make(chan []fetch.Slot, 1)
	go func() {
		done <- f.Fetch(context.Background(), pageURLs(pages), func(int, int) {
			if first {
				first = false
				<-release
			}
		})
	}()

	// Every transfer must start while the sink is still blocked on its first call.
	for i := 0; i < pages; i++ {
		select {
		case <-stub.seen:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d transfers started while progress sink was blocked", i, pages)
		}
	}
	select {
	case <-done:
		t.Fatal("Fetch returned before the progress sink drained")
	default:
	}
	close(release)

	slots := <-done
	if err := fetch.Summarize(slots); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
}

func TestFetchCancellation(t *testing.T) {
	block := make(chan struct{})
	server := testsupport.NewPageServer(t, testsupport.PageServerOptions{Pages: 10, Block: block})
	t.Cleanup(func() { close(block) })

	f := fetch.New(fetch.Options{Budget: fetch.NewBudget(2)})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	slots := f.Fetch(ctx, server.URLs(), nil)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Fetch took %v after cancellation", elapsed)
	}
	for i, slot := range slots {
		if slot.OK() {
			t.Fatalf("slot %d succeeded despite cancellation", i)
		}
		if !errors.Is(slot.Err, context.Canceled) {
			t.Fatalf("slot %d error = %v, want context.Canceled", i, slot.Err)
		}
	}
	if err := fetch.Summarize(slots); !errors.Is(err, context.Canceled) {
		t.Fatalf("Summarize = %v, want context.Canceled", err)
	}
}

func TestNewBudgetMinimum(t *testing.T) {
	if got := fetch.NewBudget(0).Size(); got != 1 {
		t.Fatalf("NewBudget(0).Size() = %d, want 1", got)
	}
	if got := fetch.New(fetch.Options{}).Budget().Size(); got != fetch.DefaultBudget {
		t.Fatalf("default budget = %d, want %d", got, fetch.DefaultBudget)
	}
}
