package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"tankobon/internal/config"
	"tankobon/internal/logging"
	"tankobon/internal/services"
)

// FlowControl retries transport calls that were refused for rate limiting.
// Any other error ends the call immediately.
type FlowControl struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	logger     *slog.Logger
}

// NewFlowControl builds a FlowControl allowing maxRetries retries after the
// first attempt. Backoff doubles from base and is capped at max.
func NewFlowControl(maxRetries int, base, max time.Duration, logger *slog.Logger) *FlowControl {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FlowControl{maxRetries: maxRetries, base: base, max: max, logger: logger}
}

// NewFlowControlFromConfig reads the [delivery] section.
func NewFlowControlFromConfig(cfg *config.Config, logger *slog.Logger) *FlowControl {
	return NewFlowControl(
		cfg.Delivery.MaxRetries,
		time.Duration(cfg.Delivery.BackoffBase)*time.Second,
		time.Duration(cfg.Delivery.BackoffMax)*time.Second,
		logger,
	)
}

// MaxRetries reports the retry ceiling.
func (f *FlowControl) MaxRetries() int {
	return f.maxRetries
}

// Delay returns the wait before retry n (zero-based). An explicit RetryAfter
// from the transport wins, even above the cap.
func (f *FlowControl) Delay(n uint, err error) time.Duration {
	if after, ok := services.RetryAfter(err); ok && after > 0 {
		return after
	}
	delay := f.base
	for i := uint(0); i < n && delay < f.max; i++ {
		delay *= 2
	}
	if delay > f.max {
		delay = f.max
	}
	return delay
}

// Do runs fn until it succeeds, fails with a non rate-limit error, runs out
// of retries, or ctx is done. Cancellation is reported with ErrCancelled.
func (f *FlowControl) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	logger := logging.WithContext(ctx, f.logger)
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.maxRetries)+1),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, services.ErrRateLimited) && ctx.Err() == nil
		}),
		// DelayType sees the one-based retry number; OnRetry sees it zero-based.
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			if n > 0 {
				n--
			}
			return f.Delay(n, err)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("transport rate limited; backing off",
				logging.String("operation", op),
				logging.Int("retry", int(n)+1),
				logging.Int("max_retries", f.maxRetries),
				logging.Duration("delay", f.Delay(n, err)),
				logging.String(logging.FieldEventType, "delivery_retry"),
				logging.String(logging.FieldImpact, "delivery delayed"),
			)
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, "", op, "cancelled", context.Cause(ctx))
	}
	if errors.Is(err, services.ErrRateLimited) && attempts > f.maxRetries {
		return fmt.Errorf("%s: still rate limited after %d retries: %w", op, f.maxRetries, err)
	}
	return err
}
