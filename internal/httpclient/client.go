// Package httpclient builds the retrying HTTP clients shared by page fetches,
// source scraping, ntfy, and the Telegram transport.
package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tankobon/internal/logging"
)

// Options configures New.
type Options struct {
	// Timeout bounds a single attempt including reading the body.
	Timeout time.Duration
	// RetryMax is the number of retries after the first attempt. Zero means a
	// single request.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// CheckRetry overrides the default retry policy.
	CheckRetry retryablehttp.CheckRetry
	Logger     *slog.Logger
	Transport  http.RoundTripper
}

// New returns a retryablehttp client. Exhausted retries hand the last
// response back to the caller instead of an opaque "giving up" error so status
// codes stay inspectable.
func New(opts Options) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: opts.Timeout}
	if opts.Transport != nil {
		client.HTTPClient.Transport = opts.Transport
	}
	client.RetryMax = max(opts.RetryMax, 0)
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.CheckRetry != nil {
		client.CheckRetry = opts.CheckRetry
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = leveledLogger{logger: opts.Logger}
	return client
}

// NewStandard returns New(opts) wrapped as a plain *http.Client.
func NewStandard(opts Options) *http.Client {
	return New(opts).StandardClient()
}

// NoRetryOn429 behaves like the default policy but hands 429 responses back to
// the caller, which owns rate-limit backoff.
func NoRetryOn429(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// leveledLogger implements retryablehttp.LeveledLogger on top of slog.
type leveledLogger struct {
	logger *slog.Logger
}

func (l leveledLogger) log() *slog.Logger {
	if l.logger == nil {
		return logging.NewNop()
	}
	return l.logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.log().Warn("http request failed", retryArgs(msg, keysAndValues)...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.log().Debug(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.log().Debug(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.log().Warn("http request retrying", retryArgs(msg, keysAndValues)...)
}

func retryArgs(msg string, keysAndValues []any) []any {
	args := []any{
		logging.String(logging.FieldEventType, "http_retry"),
		logging.String("detail", msg),
	}
	return append(args, keysAndValues...)
}
