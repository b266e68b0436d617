package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	StateDir   string `toml:"state_dir"`
}

// Telegram contains Bot API connection settings.
type Telegram struct {
	BotToken          string  `toml:"bot_token"`
	APIBaseURL        string  `toml:"api_base_url"`
	PollTimeout       int     `toml:"poll_timeout"`
	RequestTimeout    int     `toml:"request_timeout"`
	MaxUploadMB       int     `toml:"max_upload_mb"`
	MessagesPerSecond float64 `toml:"messages_per_second"`
	AllowedChats      []int64 `toml:"allowed_chats"`
}

// Fetch contains page download settings.
type Fetch struct {
	// Concurrency is the process-wide budget of simultaneous page transfers.
	Concurrency    int    `toml:"concurrency"`
	RequestTimeout int    `toml:"request_timeout"`
	PageRetries    int    `toml:"page_retries"`
	UserAgent      string `toml:"user_agent"`
}

// Delivery contains flow-control settings for rate-limited transport calls.
type Delivery struct {
	MaxRetries  int `toml:"max_retries"`
	BackoffBase int `toml:"backoff_base"`
	BackoffMax  int `toml:"backoff_max"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	Workers            int `toml:"workers"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	JobTimeout         int `toml:"job_timeout"`
	WaitNotice         int `toml:"wait_notice"`
	ProgressIntervalMS int `toml:"progress_interval_ms"`
	StaleStagingHours  int `toml:"stale_staging_hours"`
}

// Output contains artifact format defaults.
type Output struct {
	DefaultFormats []string `toml:"default_formats"`
}

// Session contains chat session cache settings.
type Session struct {
	CacheSize  int `toml:"cache_size"`
	TTLMinutes int `toml:"ttl_minutes"`
	PageSize   int `toml:"page_size"`
}

// Notifications contains configuration for ntfy operator alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobFailed      bool   `toml:"job_failed"`
	JobCompleted   bool   `toml:"job_completed"`
	DaemonStarted  bool   `toml:"daemon_started"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Source describes one HTML manga site and the CSS selectors used to read it.
type Source struct {
	ID              string `toml:"id"`
	Name            string `toml:"name"`
	BaseURL         string `toml:"base_url"`
	SearchPath      string `toml:"search_path"`
	SearchItem      string `toml:"search_item"`
	SearchLink      string `toml:"search_link"`
	SearchTitle     string `toml:"search_title"`
	ChapterItem     string `toml:"chapter_item"`
	ChapterLink     string `toml:"chapter_link"`
	ChapterTitle    string `toml:"chapter_title"`
	ReverseChapters bool   `toml:"reverse_chapters"`
	PageImage       string `toml:"page_image"`
	PageAttr        string `toml:"page_attr"`
}

// Config encapsulates all configuration values for tankobon.
//
// Configuration sections by subsystem:
//   - Paths: staging, log, and state directories
//   - Telegram: Bot API token, endpoint, and outbound limits
//   - Fetch: page download budget and timeouts
//   - Delivery: rate-limit retry policy
//   - Workflow: worker count, polling, and job timeouts
//   - Output: default artifact formats
//   - Session: chat selection cache
//   - Notifications: ntfy operator alerts
//   - Logging: log format, level, and retention
//   - Sources: HTML site adapters
type Config struct {
	Paths         Paths         `toml:"paths"`
	Telegram      Telegram      `toml:"telegram"`
	Fetch         Fetch         `toml:"fetch"`
	Delivery      Delivery      `toml:"delivery"`
	Workflow      Workflow      `toml:"workflow"`
	Output        Output        `toml:"output"`
	Session       Session       `toml:"session"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Sources       []Source      `toml:"sources"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tankobon.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the job queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath returns the location of the single-instance daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "tankobon.lock")
}

// SourceByID returns the configured source with the given identifier.
func (c *Config) SourceByID(id string) (Source, bool) {
	id = strings.TrimSpace(id)
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML with secrets redacted.
func (c *Config) Encode() ([]byte, error) {
	clone := *c
	if clone.Telegram.BotToken != "" {
		clone.Telegram.BotToken = "<redacted>"
	}
	return toml.Marshal(clone)
}
