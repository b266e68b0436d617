package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrFetch         = errors.New("fetch error")
	ErrPack          = errors.New("pack error")
	ErrDelivery      = errors.New("delivery error")
	ErrRateLimited   = errors.New("rate limited")
	ErrCancelled     = errors.New("cancelled")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Kind names the marker carried by a service error. It is logged as
// error_kind and drives the wording of requester-facing failure messages.
type Kind string

const (
	KindFetch         Kind = "fetch"
	KindPack          Kind = "pack"
	KindDelivery      Kind = "delivery"
	KindRateLimited   Kind = "rate_limited"
	KindCancelled     Kind = "cancelled"
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindTransient     Kind = "transient"
)

var markerKinds = []struct {
	marker error
	kind   Kind
	hint   string
}{
	{ErrCancelled, KindCancelled, "job was cancelled; resubmit the chapter"},
	{ErrRateLimited, KindRateLimited, "transport is throttling; wait and retry"},
	{ErrFetch, KindFetch, "check the source site or page URLs"},
	{ErrPack, KindPack, "check staging_dir free space and permissions"},
	{ErrDelivery, KindDelivery, "check file size limits and bot permissions"},
	{ErrValidation, KindValidation, "check the request parameters"},
	{ErrConfiguration, KindConfiguration, "check the configuration file"},
	{ErrNotFound, KindNotFound, "the requested item no longer exists"},
	{ErrTransient, KindTransient, "retry the operation"},
}

// Error is the structured error produced by Wrap.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

// Is reports whether target is this error's marker.
func (e *Error) Is(target error) bool {
	return e.Marker != nil && target == e.Marker
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the flattened view of a wrapped error used for logging.
type ErrorDetails struct {
	Kind      Kind
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts the outermost service error context from err. Errors that
// were never wrapped are classified by marker alone.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindTransient, Message: strings.TrimSpace(err.Error())}
	for _, entry := range markerKinds {
		if errors.Is(err, entry.marker) {
			details.Kind = entry.kind
			details.Hint = entry.hint
			break
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		details.Kind = KindCancelled
		details.Hint = "job was cancelled; resubmit the chapter"
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		details.Stage = svcErr.Stage
		details.Operation = svcErr.Operation
		if svcErr.Message != "" {
			details.Message = svcErr.Message
		}
		details.Cause = svcErr.Cause
	}
	return details
}

// RateLimitError signals that a transport refused a call because of flow
// control. RetryAfter is zero when the transport gave no explicit interval.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := "rate limited"
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Unwrap() error { return e.Err }

// RetryAfter returns the interval requested by a rate-limited transport.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		return 0, false
	}
	return rl.RetryAfter, true
}

// IsCancelled reports whether err stems from context cancellation or an
// explicit ErrCancelled marker.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
