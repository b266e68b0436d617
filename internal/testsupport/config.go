package testsupport

import (
	"path/filepath"
	"testing"

	"tankobon/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Telegram.BotToken = "123:test"
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Workflow.ProgressIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithConcurrency overrides the page fetch budget.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.Concurrency = n
	}
}

// WithDelivery overrides the rate-limit retry policy. Backoff values are seconds.
func WithDelivery(maxRetries, backoffBase, backoffMax int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Delivery.MaxRetries = maxRetries
		b.cfg.Delivery.BackoffBase = backoffBase
		b.cfg.Delivery.BackoffMax = backoffMax
	}
}

// WithWorkers overrides the number of workflow consumers.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.Workers = n
	}
}

// WithSource appends an HTML source rooted at baseURL with selectors matching
// the fixtures served by NewSiteServer.
func WithSource(id, baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources = append(b.cfg.Sources, config.Source{
			ID:              id,
			Name:            id,
			BaseURL:         baseURL,
			SearchPath:      "/search?q=%s",
			SearchItem:      "div.result",
			SearchLink:      "a",
			SearchTitle:     "a",
			ChapterItem:     "ul.chapters li",
			ChapterLink:     "a",
			ChapterTitle:    "a",
			ReverseChapters: true,
			PageImage:       "div.reader img",
			PageAttr:        "data-src",
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
