package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RunLogPattern matches the per-run events files the daemon writes.
const RunLogPattern = "tankobon-*.events"

// minRunsKept is how many of the newest run logs survive pruning regardless
// of age, so a daemon that restarts rarely still has recent history.
const minRunsKept = 3

// RunLogRetention describes which run logs PruneRunLogs may remove.
type RunLogRetention struct {
	Dir  string
	Days int
	// Current is the log of the running daemon; it is never removed.
	Current string
}

type runLog struct {
	path    string
	modTime time.Time
}

// PruneRunLogs removes run logs older than Days, keeping the current one and
// the newest few. Days <= 0 disables pruning. It returns how many files were
// removed.
func PruneRunLogs(logger *slog.Logger, policy RunLogRetention) int {
	dir := strings.TrimSpace(policy.Dir)
	if policy.Days <= 0 || dir == "" {
		return 0
	}
	current := ""
	if strings.TrimSpace(policy.Current) != "" {
		current, _ = filepath.Abs(policy.Current)
	}

	runs := listRunLogs(dir, current)
	sort.Slice(runs, func(i, j int) bool { return runs[i].modTime.After(runs[j].modTime) })
	if len(runs) <= minRunsKept {
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -policy.Days)
	removed := 0
	for _, run := range runs[minRunsKept:] {
		if !run.modTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(run.path); err != nil {
			WarnWithContext(logger, "run log not pruned", "log_retention_failed",
				String("path", run.path),
				Error(err),
				String(FieldErrorHint, "check permissions on the log directory"),
				String(FieldImpact, "old run log stays on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("run log pruned",
				String("path", run.path),
				String(FieldEventType, "log_pruned"),
			)
		}
	}
	return removed
}

func listRunLogs(dir, current string) []runLog {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	runs := make([]runLog, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(RunLogPattern, entry.Name()); !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if path == current {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		runs = append(runs, runLog{path: path, modTime: info.ModTime()})
	}
	return runs
}
