package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"tankobon/internal/config"
	"tankobon/internal/httpclient"
	"tankobon/internal/logging"
	"tankobon/internal/services"
)

const maxResponseBytes = 4 << 20

// Options configures New.
type Options struct {
	Token   string
	BaseURL string
	// Timeout bounds one HTTP attempt. It must exceed the long-poll timeout.
	Timeout time.Duration
	// MaxUploadBytes rejects larger documents before any bytes are sent.
	// Zero disables the check.
	MaxUploadBytes    int64
	MessagesPerSecond float64
	RetryMax          int
	Logger            *slog.Logger
	Transport         http.RoundTripper
}

// Client calls the Bot API.
type Client struct {
	token     string
	endpoint  string
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	maxUpload int64
	logger    *slog.Logger
}

// New builds a client. Server errors and dropped connections are retried by
// the HTTP layer; 429 responses are returned to the caller.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	limit := rate.Inf
	if opts.MessagesPerSecond > 0 {
		limit = rate.Limit(opts.MessagesPerSecond)
	}
	return &Client{
		token:    opts.Token,
		endpoint: strings.TrimRight(opts.BaseURL, "/") + "/bot" + opts.Token + "/",
		http: httpclient.New(httpclient.Options{
			Timeout:      opts.Timeout,
			RetryMax:     opts.RetryMax,
			RetryWaitMin: time.Second,
			RetryWaitMax: 10 * time.Second,
			CheckRetry:   httpclient.NoRetryOn429,
			Logger:       opts.Logger,
			Transport:    opts.Transport,
		}),
		limiter:   rate.NewLimiter(limit, 1),
		maxUpload: opts.MaxUploadBytes,
		logger:    opts.Logger,
	}
}

// NewFromConfig builds a client from the [telegram] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return New(Options{
		Token:             cfg.Telegram.BotToken,
		BaseURL:           cfg.Telegram.APIBaseURL,
		Timeout:           time.Duration(cfg.Telegram.RequestTimeout) * time.Second,
		MaxUploadBytes:    int64(cfg.Telegram.MaxUploadMB) << 20,
		MessagesPerSecond: cfg.Telegram.MessagesPerSecond,
		RetryMax:          2,
		Logger:            logging.NewComponentLogger(logger, "telegram"),
	})
}

// call posts params as JSON and decodes the result into out. Outbound
// messages wait for the limiter; long polls do not.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if method != "getUpdates" {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.transportError(ctx, method, err)
		}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+method, payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(ctx, method, req, out)
}

func (c *Client) do(ctx context.Context, method string, req *retryablehttp.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, method, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		if resp.StatusCode >= 400 {
			return classify(method, resp.StatusCode, resp.Header, apiResponse{})
		}
		return services.Wrap(services.ErrDelivery, "", method, "decode response", err)
	}
	if !body.OK || resp.StatusCode >= 400 {
		return classify(method, resp.StatusCode, resp.Header, body)
	}
	if out == nil || len(body.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(body.Result, out); err != nil {
		return services.Wrap(services.ErrDelivery, "", method, "decode result", err)
	}
	return nil
}

// transportError classifies failures that never produced an API response.
// The token is part of every URL and is scrubbed from the message.
func (c *Client) transportError(ctx context.Context, method string, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, "", method, "cancelled", context.Cause(ctx))
	}
	msg := err.Error()
	if c.token != "" {
		msg = strings.ReplaceAll(msg, c.token, "<redacted>")
	}
	return services.Wrap(services.ErrDelivery, "", method, "Telegram is unreachable", errors.New(msg))
}
