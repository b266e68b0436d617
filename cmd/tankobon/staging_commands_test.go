package main

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"tankobon/internal/staging"
	"tankobon/internal/testsupport"
)

func TestStagingListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)

	testsupport.MustEnqueue(t, store, 1, "1")
	running, err := store.NextPending(context.Background())
	if err != nil || running == nil {
		t.Fatalf("NextPending: %v", err)
	}
	stagingDir := env.cfg.Paths.StagingDir
	activeDir, _ := staging.Prepare(stagingDir, running.ID)
	orphanDir, _ := staging.Prepare(stagingDir, 999)
	testsupport.WriteFile(t, filepath.Join(activeDir, "0001.png"), 10)
	testsupport.WriteFile(t, filepath.Join(orphanDir, "0001.png"), 10)

	out, _, err := runCLI(t, env.configPath, "staging", "list")
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	requireContains(t, out, "job-999")
	requireContains(t, out, "Total: 2 directories")

	out, _, err = runCLI(t, env.configPath, "staging", "clean")
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "Removed 1 staging directories")

	left := testsupport.DirEntries(t, stagingDir)
	if !slices.Contains(left, filepath.Base(activeDir)) || slices.Contains(left, "job-999") {
		t.Fatalf("unexpected staging contents after clean: %v", left)
	}

	if _, _, err := runCLI(t, env.configPath, "staging", "clean", "--all"); err != nil {
		t.Fatalf("staging clean --all: %v", err)
	}
	if left := testsupport.DirEntries(t, stagingDir); len(left) != 0 {
		t.Fatalf("staging not empty after --all: %v", left)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env.configPath, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}
