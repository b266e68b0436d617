package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"tankobon/internal/queue"
	"tankobon/internal/testsupport"
)

func TestOpenCreatesDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if store.Path() != filepath.Join(cfg.Paths.StateDir, "queue.db") {
		t.Fatalf("unexpected db path %q", store.Path())
	}

	ctx := context.Background()
	job, err := store.Enqueue(ctx, &queue.Job{
		RequesterID: 42,
		SourceID:    "demo",
		ChapterID:   "https://manga.example.com/chapter/1",
		Title:       "Chapter 1",
		Format:      "cbz",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.RequesterID != 42 || fetched.Title != "Chapter 1" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}

	missing, err := store.Get(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("Get(missing) = %#v, %v; want nil, nil", missing, err)
	}
}

func TestReopenKeepsJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	testsupport.MustEnqueue(t, first, 1, "a")
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := testsupport.MustOpenStore(t, cfg)
	depth, err := second.Depth(context.Background())
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 1 {
		t.Fatalf("depth after reopen = %d, want 1", depth)
	}
}

func TestEnqueueValidates(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	tests := []struct {
		name string
		job  *queue.Job
	}{
		{"nil", nil},
		{"missing chapter", &queue.Job{SourceID: "demo", Format: "cbz"}},
		{"missing source", &queue.Job{ChapterID: "c", Format: "cbz"}},
		{"missing format", &queue.Job{SourceID: "demo", ChapterID: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Enqueue(ctx, tt.job); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNextPendingIsFIFO(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.MustEnqueue(t, store, 1, "a")
	second := testsupport.MustEnqueue(t, store, 2, "b")
	third := testsupport.MustEnqueue(t, store, 1, "c")

	for _, want := range []*queue.Job{first, second, third} {
		got, err := store.NextPending(ctx)
		if err != nil {
			t.Fatalf("NextPending: %v", err)
		}
		if got == nil || got.ID != want.ID {
			t.Fatalf("NextPending = %#v, want id %d", got, want.ID)
		}
		if got.Status != queue.StatusFetching {
			t.Fatalf("claimed status = %s, want fetching", got.Status)
		}
		if got.Attempts != 1 {
			t.Fatalf("attempts = %d, want 1", got.Attempts)
		}
	}

	empty, err := store.NextPending(ctx)
	if err != nil || empty != nil {
		t.Fatalf("NextPending on empty queue = %#v, %v", empty, err)
	}
}

func TestNextPendingConcurrentClaimsAreExclusive(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	const total = 8
	for i := 0; i < total; i++ {
		testsupport.MustEnqueue(t, store, int64(i), "c")
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.NextPending(ctx)
				if err != nil {
					t.Errorf("NextPending: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), total)
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("job %d claimed %d times", id, count)
		}
	}
}

func TestUpdatePersistsFields(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, 7, "a")
	job, err := store.NextPending(ctx)
	if err != nil || job == nil {
		t.Fatalf("NextPending: %v", err)
	}

	job.PageURLs = []string{"https://img.example/1.jpg", "https://img.example/2.png"}
	job.ProgressDone = 2
	job.ProgressTotal = 2
	if err := job.Advance(queue.StatusPacking); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	job.ArtifactPath = "/tmp/a.cbz"
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queue.StatusPacking {
		t.Fatalf("status = %s", got.Status)
	}
	if !reflect.DeepEqual(got.PageURLs, job.PageURLs) {
		t.Fatalf("page urls = %v, want %v", got.PageURLs, job.PageURLs)
	}
	if got.ProgressPercent() != 100 {
		t.Fatalf("progress = %v", got.ProgressPercent())
	}
	if got.ArtifactPath != "/tmp/a.cbz" {
		t.Fatalf("artifact = %q", got.ArtifactPath)
	}
	if got.FinishedAt != nil {
		t.Fatal("finished_at should be unset before a terminal status")
	}

	if err := store.UpdateProgress(ctx, job.ID, 1, 5); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ = store.Get(ctx, job.ID)
	if got.ProgressDone != 1 || got.ProgressTotal != 5 || got.Status != queue.StatusPacking {
		t.Fatalf("progress update clobbered job: %#v", got)
	}
}

func TestFailPendingOnlyAffectsPending(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	claimedJob := testsupport.MustEnqueue(t, store, 1, "a")
	waiting := testsupport.MustEnqueue(t, store, 2, "b")
	if _, err := store.NextPending(ctx); err != nil {
		t.Fatalf("NextPending: %v", err)
	}

	changed, err := store.FailPending(ctx, claimedJob.ID, "cancelled")
	if err != nil {
		t.Fatalf("FailPending: %v", err)
	}
	if changed {
		t.Fatal("claimed job should not be failed by FailPending")
	}

	changed, err = store.FailPending(ctx, waiting.ID, "cancelled")
	if err != nil || !changed {
		t.Fatalf("FailPending(waiting) = %v, %v", changed, err)
	}
	got, _ := store.Get(ctx, waiting.ID)
	if got.Status != queue.StatusFailed || got.ErrorMessage != "cancelled" || got.FinishedAt == nil {
		t.Fatalf("unexpected failed job: %#v", got)
	}
}

func TestDepthStatsListAndRemove(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	a := testsupport.MustEnqueue(t, store, 1, "a")
	testsupport.MustEnqueue(t, store, 2, "b")
	testsupport.MustEnqueue(t, store, 3, "c")

	claimed, _ := store.NextPending(ctx)
	if claimed.ID != a.ID {
		t.Fatalf("claimed %d, want %d", claimed.ID, a.ID)
	}
	claimed.Status = queue.StatusDone
	if err := store.Update(ctx, claimed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	depth, err := store.Depth(ctx)
	if err != nil || depth != 2 {
		t.Fatalf("Depth = %d, %v; want 2", depth, err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusPending] != 2 || stats[queue.StatusDone] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	pending, err := store.List(ctx, queue.StatusPending)
	if err != nil || len(pending) != 2 {
		t.Fatalf("List(pending) = %d jobs, %v", len(pending), err)
	}
	all, err := store.List(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("List() = %d jobs, %v", len(all), err)
	}

	removed, err := store.Remove(ctx, pending[0].ID, a.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1 (pending jobs are protected)", removed)
	}

	testsupport.MustEnqueue(t, store, 4, "d")
	cleared, err := store.ClearTerminal(ctx)
	if err != nil || cleared != 0 {
		t.Fatalf("ClearTerminal = %d, %v; want 0", cleared, err)
	}
}

func TestFailInterrupted(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, 1, "a")
	testsupport.MustEnqueue(t, store, 2, "b")
	done := testsupport.MustEnqueue(t, store, 3, "c")

	running, _ := store.NextPending(ctx)
	running.Status = queue.StatusDelivering
	if err := store.Update(ctx, running); err != nil {
		t.Fatalf("Update: %v", err)
	}
	done.Status = queue.StatusDone
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	failed, err := store.FailInterrupted(ctx, queue.DaemonStopReason)
	if err != nil {
		t.Fatalf("FailInterrupted: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("failed %d jobs, want 2", len(failed))
	}
	requesters := map[int64]bool{}
	for _, job := range failed {
		requesters[job.RequesterID] = true
		if job.Status != queue.StatusFailed || job.ErrorMessage != queue.DaemonStopReason {
			t.Fatalf("unexpected returned job: %#v", job)
		}
	}
	if !requesters[1] || !requesters[2] {
		t.Fatalf("unexpected requesters: %v", requesters)
	}

	stats, _ := store.Stats(ctx)
	if stats[queue.StatusFailed] != 2 || stats[queue.StatusDone] != 1 {
		t.Fatalf("unexpected stats after FailInterrupted: %v", stats)
	}

	again, err := store.FailInterrupted(ctx, queue.DaemonStopReason)
	if err != nil || len(again) != 0 {
		t.Fatalf("second FailInterrupted = %d, %v", len(again), err)
	}
}

func TestOpenRefusesForeignSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", "file:"+cfg.QueueDBPath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("Open = %v, want ErrSchemaMismatch", err)
	}
}
