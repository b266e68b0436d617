package config

const (
	defaultConfigPath               = "~/.config/tankobon/config.toml"
	defaultStagingDir               = "~/.local/share/tankobon/staging"
	defaultLogDir                   = "~/.local/share/tankobon/logs"
	defaultStateDir                 = "~/.local/share/tankobon"
	defaultTelegramAPIBaseURL       = "https://api.telegram.org"
	defaultTelegramPollTimeout      = 30
	defaultTelegramRequestTimeout   = 120
	defaultTelegramMaxUploadMB      = 50
	defaultTelegramMessagesPerSec   = 20
	defaultFetchConcurrency         = 5
	defaultFetchRequestTimeout      = 30
	defaultFetchUserAgent           = "tankobon/0.1 (+https://github.com/tankobon)"
	defaultDeliveryMaxRetries       = 5
	defaultDeliveryBackoffBase      = 1
	defaultDeliveryBackoffMax       = 60
	defaultWorkflowWorkers          = 1
	defaultWorkflowPollInterval     = 5
	defaultWorkflowErrorRetry       = 10
	defaultWorkflowJobTimeout       = 900
	defaultWorkflowWaitNotice       = 3
	defaultWorkflowProgressInterval = 1500
	defaultWorkflowStaleStaging     = 24
	defaultSessionCacheSize         = 4096
	defaultSessionTTLMinutes        = 60
	defaultSessionPageSize          = 20
	defaultNotifyRequestTimeout     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
)

// FormatArchive and FormatPDF are the output format names accepted in
// output.default_formats.
const (
	FormatArchive = "cbz"
	FormatPDF     = "pdf"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
		},
		Telegram: Telegram{
			APIBaseURL:        defaultTelegramAPIBaseURL,
			PollTimeout:       defaultTelegramPollTimeout,
			RequestTimeout:    defaultTelegramRequestTimeout,
			MaxUploadMB:       defaultTelegramMaxUploadMB,
			MessagesPerSecond: defaultTelegramMessagesPerSec,
		},
		Fetch: Fetch{
			Concurrency:    defaultFetchConcurrency,
			RequestTimeout: defaultFetchRequestTimeout,
			UserAgent:      defaultFetchUserAgent,
		},
		Delivery: Delivery{
			MaxRetries:  defaultDeliveryMaxRetries,
			BackoffBase: defaultDeliveryBackoffBase,
			BackoffMax:  defaultDeliveryBackoffMax,
		},
		Workflow: Workflow{
			Workers:            defaultWorkflowWorkers,
			QueuePollInterval:  defaultWorkflowPollInterval,
			ErrorRetryInterval: defaultWorkflowErrorRetry,
			JobTimeout:         defaultWorkflowJobTimeout,
			WaitNotice:         defaultWorkflowWaitNotice,
			ProgressIntervalMS: defaultWorkflowProgressInterval,
			StaleStagingHours:  defaultWorkflowStaleStaging,
		},
		Output: Output{
			DefaultFormats: []string{FormatArchive},
		},
		Session: Session{
			CacheSize:  defaultSessionCacheSize,
			TTLMinutes: defaultSessionTTLMinutes,
			PageSize:   defaultSessionPageSize,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobFailed:      true,
			DaemonStarted:  true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
