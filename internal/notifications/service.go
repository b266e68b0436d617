package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tankobon/internal/config"
	"tankobon/internal/httpclient"
)

const userAgent = "tankobon/0.1"

// Event names an operator alert.
type Event string

const (
	EventJobCompleted     Event = "job_completed"
	EventJobFailed        Event = "job_failed"
	EventDaemonStarted    Event = "daemon_started"
	EventError            Event = "error"
	EventTestNotification Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	return NewServiceWithLogger(cfg, nil)
}

// NewServiceWithLogger is NewService with retry logging routed to logger.
func NewServiceWithLogger(cfg *config.Config, logger *slog.Logger) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client: httpclient.NewStandard(httpclient.Options{
			Timeout:      timeout,
			RetryMax:     2,
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			Logger:       logger,
		}),
		enabled: map[Event]bool{
			EventJobCompleted:     cfg.Notifications.JobCompleted,
			EventJobFailed:        cfg.Notifications.JobFailed,
			EventDaemonStarted:    cfg.Notifications.DaemonStarted,
			EventError:            true,
			EventTestNotification: true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventJobCompleted:
		title := str(data, "title")
		message := fmt.Sprintf("📚 Delivered: %s", title)
		if f := str(data, "format"); f != "" {
			message = fmt.Sprintf("%s (%s)", message, strings.ToUpper(f))
		}
		if pages, ok := data["pages"].(int); ok && pages > 0 {
			message = fmt.Sprintf("%s, %d pages", message, pages)
		}
		return payload{
			title:   "tankobon - Delivered",
			message: message,
			tags:    []string{"tankobon", "job", "completed"},
		}, true
	case EventJobFailed:
		title := str(data, "title")
		reason := str(data, "error")
		if reason == "" {
			reason = "unknown error"
		}
		return payload{
			title:    "tankobon - Job Failed",
			message:  fmt.Sprintf("❌ %s: %s", title, reason),
			tags:     []string{"tankobon", "job", "failed"},
			priority: "high",
		}, true
	case EventDaemonStarted:
		message := "🚀 tankobon daemon started"
		if bot := str(data, "bot"); bot != "" {
			message = fmt.Sprintf("%s as @%s", message, bot)
		}
		return payload{
			title:    "tankobon - Started",
			message:  message,
			tags:     []string{"tankobon", "daemon", "started"},
			priority: "low",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := str(data, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if reason := str(data, "error"); reason != "" {
			builder.WriteString(reason)
		} else {
			builder.WriteString("unknown")
		}
		return payload{
			title:    "tankobon - Error",
			message:  builder.String(),
			tags:     []string{"tankobon", "error", "alert"},
			priority: "high",
		}, true
	case EventTestNotification:
		return payload{
			title:    "tankobon - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"tankobon", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func str(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// NewNoop returns a Service that drops every event.
func NewNoop() Service {
	return noopService{}
}
