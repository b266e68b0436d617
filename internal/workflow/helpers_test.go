package workflow_test

import (
	"archive/zip"
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tankobon/internal/config"
	"tankobon/internal/fetch"
	"tankobon/internal/notifications"
	"tankobon/internal/queue"
	"tankobon/internal/testsupport"
	"tankobon/internal/workflow"
)

type staticPages struct {
	urls  []string
	err   error
	calls atomic.Int32
}

func (s *staticPages) ListPages(context.Context, string, string) ([]string, error) {
	s.calls.Add(1)
	return s.urls, s.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type harness struct {
	cfg       *config.Config
	store     *queue.Store
	transport *testsupport.Transport
	pages     *staticPages
	orch      *workflow.Orchestrator
}

func newHarness(t *testing.T, urls []string, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:       cfg,
		store:     testsupport.MustOpenStore(t, cfg),
		transport: &testsupport.Transport{},
		pages:     &staticPages{urls: urls},
	}
	h.orch = workflow.NewOrchestrator(workflow.OrchestratorOptions{
		Store:            h.store,
		Pages:            h.pages,
		Fetcher:          fetch.NewFromConfig(cfg, nil),
		Transport:        h.transport,
		Flow:             workflow.NewFlowControlFromConfig(cfg, nil),
		StagingDir:       cfg.Paths.StagingDir,
		ProgressInterval: 10 * time.Millisecond,
	})
	return h
}

// claim enqueues a job and claims it the way a worker would.
func (h *harness) claim(t *testing.T, requesterID int64, chapterID string) *queue.Job {
	t.Helper()
	testsupport.MustEnqueue(t, h.store, requesterID, chapterID)
	job, err := h.store.NextPending(context.Background())
	if err != nil || job == nil {
		t.Fatalf("NextPending = %v, %v", job, err)
	}
	return job
}

func (h *harness) reload(t *testing.T, id int64) *queue.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("Get(%d) = %v, %v", id, job, err)
	}
	return job
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open delivered archive: %v", err)
	}
	names := make([]string, len(reader.File))
	for i, f := range reader.File {
		names[i] = f.Name
	}
	return names
}

func countPrefix(texts []string, prefix string) int {
	n := 0
	for _, text := range texts {
		if len(text) >= len(prefix) && text[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
