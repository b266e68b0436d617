package testsupport

import (
	"context"
	"testing"

	"tankobon/internal/config"
	"tankobon/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustEnqueue inserts a pending cbz job for the requester and fails the test on error.
func MustEnqueue(t testing.TB, store *queue.Store, requesterID int64, chapterID string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), &queue.Job{
		RequesterID: requesterID,
		SourceID:    "demo",
		ChapterID:   chapterID,
		Title:       "Chapter " + chapterID,
		Format:      config.FormatArchive,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job
}
