package main

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"tankobon/internal/queue"
	"tankobon/internal/testsupport"
)

func TestQueueListAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	testsupport.MustEnqueue(t, store, 11, "1")
	testsupport.MustEnqueue(t, store, 12, "2")

	out, _, err := runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Chapter 1")
	requireContains(t, out, "Chapter 2")
	requireContains(t, out, "CBZ")

	out, _, err = runCLI(t, env.configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "pending")

	out, _, err = runCLI(t, env.configPath, "--json", "queue", "list", "--status", "pending")
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	var views []queueJobView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(views) != 2 || views[0].Requester != 11 || views[0].Status != "pending" {
		t.Fatalf("unexpected json views: %+v", views)
	}

	if _, _, err := runCLI(t, env.configPath, "queue", "list", "--status", "ripping"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestQueueEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueRemoveKeepsPendingAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	ctx := context.Background()

	done := testsupport.MustEnqueue(t, store, 1, "1")
	waiting := testsupport.MustEnqueue(t, store, 2, "2")
	failed := testsupport.MustEnqueue(t, store, 3, "3")
	done.Status = queue.StatusDone
	failed.Status = queue.StatusFailed
	for _, job := range []*queue.Job{done, failed} {
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	out, _, err := runCLI(t, env.configPath, "queue", "remove",
		strconv.FormatInt(done.ID, 10), strconv.FormatInt(waiting.ID, 10))
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed 1 of 2 jobs")
	requireContains(t, out, "/cancel")

	if _, _, err := runCLI(t, env.configPath, "queue", "remove", "abc"); err == nil {
		t.Fatal("expected invalid id to fail")
	}

	out, _, err = runCLI(t, env.configPath, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 finished jobs")

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != waiting.ID {
		t.Fatalf("unexpected remaining jobs: %+v", remaining)
	}
}
