package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tankobon/internal/config"
	"tankobon/internal/logging"
	"tankobon/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller", logging.String("chapter", "One Piece 1000"))

	content := readLog(t, logPath)
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if !strings.Contains(content, "INFO") || !strings.Contains(content, "message without caller") {
		t.Fatalf("expected level and message, got %q", content)
	}
	if !strings.Contains(content, "- chapter: One Piece 1000") {
		t.Fatalf("expected field line, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersJobSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), 7)
	ctx = services.WithStage(ctx, "fetching")
	componentLogger := logging.NewComponentLogger(logger, "workflow")
	logging.WithContext(ctx, componentLogger).Info("stage started")

	content := readLog(t, logPath)
	for _, fragment := range []string{"[workflow]", "Job #7 (fetching)", "stage started"} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
	if strings.Contains(content, "- job_id") {
		t.Fatalf("job id should be folded into the header, got %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Warn("delivery throttled", logging.Error(errors.New("429")))

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record["level"] != "warn" || record["msg"] != "delivery throttled" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key in %v", record)
	}
	if record["error"] != "429" {
		t.Fatalf("expected error field, got %v", record["error"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewDaemonLoggerTeesJSONEvents(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "info"
	eventsPath := filepath.Join(t.TempDir(), "logs", "tankobon.events")

	logger, err := logging.NewDaemonLogger(&cfg, eventsPath)
	if err != nil {
		t.Fatalf("NewDaemonLogger: %v", err)
	}
	logger.Info("daemon started", logging.String(logging.FieldEventType, "daemon_start"))
	logger.Debug("hidden at info")
	logger.Info("polling for updates")

	content := readLog(t, eventsPath)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one event line, got %d: %q", len(lines), content)
	}
	if !strings.Contains(lines[0], `"event_type":"daemon_start"`) {
		t.Fatalf("unexpected event line %q", lines[0])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "staging cleanup failed", "staging_cleanup_failed")

	content := readLog(t, logPath)
	for _, key := range []string{`"event_type":"staging_cleanup_failed"`, `"error_hint"`, `"impact"`} {
		if !strings.Contains(content, key) {
			t.Fatalf("expected %s in %q", key, content)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:             "0 B",
		1023:          "1023 B",
		1536:          "1.5 KiB",
		256 << 20:     "256.0 MiB",
		3 * (1 << 30): "3.0 GiB",
	}
	for in, want := range tests {
		if got := logging.FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
