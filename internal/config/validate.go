package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateSources()
}

// RequireBotToken reports an error when no Telegram bot token is configured.
// Commands that talk to the Bot API call this after Load.
func (c *Config) RequireBotToken() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return errors.New("telegram.bot_token must be set (or TANKOBON_BOT_TOKEN exported)")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == "" {
		return errors.New("staging_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("log_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("state_dir must be set")
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if _, err := url.ParseRequestURI(c.Telegram.APIBaseURL); err != nil {
		return fmt.Errorf("telegram.api_base_url: %w", err)
	}
	if err := ensurePositiveMap(map[string]int{
		"telegram.poll_timeout":    c.Telegram.PollTimeout,
		"telegram.request_timeout": c.Telegram.RequestTimeout,
		"telegram.max_upload_mb":   c.Telegram.MaxUploadMB,
	}); err != nil {
		return err
	}
	if c.Telegram.MessagesPerSecond <= 0 {
		return errors.New("telegram.messages_per_second must be positive")
	}
	if c.Telegram.RequestTimeout <= c.Telegram.PollTimeout {
		return errors.New("telegram.request_timeout must exceed telegram.poll_timeout")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if err := ensurePositiveMap(map[string]int{
		"fetch.concurrency":     c.Fetch.Concurrency,
		"fetch.request_timeout": c.Fetch.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Fetch.PageRetries < 0 {
		return errors.New("fetch.page_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.MaxRetries < 0 {
		return errors.New("delivery.max_retries must be >= 0")
	}
	if err := ensurePositiveMap(map[string]int{
		"delivery.backoff_base": c.Delivery.BackoffBase,
		"delivery.backoff_max":  c.Delivery.BackoffMax,
	}); err != nil {
		return err
	}
	if c.Delivery.BackoffMax < c.Delivery.BackoffBase {
		return errors.New("delivery.backoff_max must be >= delivery.backoff_base")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":              c.Workflow.Workers,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.job_timeout":          c.Workflow.JobTimeout,
		"workflow.progress_interval_ms": c.Workflow.ProgressIntervalMS,
	}); err != nil {
		return err
	}
	if c.Workflow.WaitNotice < 0 {
		return errors.New("workflow.wait_notice must be >= 0")
	}
	if c.Workflow.StaleStagingHours < 0 {
		return errors.New("workflow.stale_staging_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if len(c.Output.DefaultFormats) == 0 {
		return errors.New("output.default_formats must list at least one format")
	}
	for _, name := range c.Output.DefaultFormats {
		switch name {
		case FormatArchive, FormatPDF:
		default:
			return fmt.Errorf("output.default_formats: unsupported format %q (want %s or %s)", name, FormatArchive, FormatPDF)
		}
	}
	return nil
}

func (c *Config) validateSession() error {
	return ensurePositiveMap(map[string]int{
		"session.cache_size":  c.Session.CacheSize,
		"session.ttl_minutes": c.Session.TTLMinutes,
		"session.page_size":   c.Session.PageSize,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d].id must be set", i)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("sources[%d].id %q is duplicated", i, src.ID)
		}
		seen[src.ID] = struct{}{}
		parsed, err := url.Parse(src.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("sources[%d].base_url must be an absolute URL", i)
		}
		required := map[string]string{
			"search_path":  src.SearchPath,
			"search_item":  src.SearchItem,
			"chapter_item": src.ChapterItem,
			"page_image":   src.PageImage,
		}
		for key, value := range required {
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("sources[%d].%s must be set", i, key)
			}
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
