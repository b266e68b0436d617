package telegram

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tankobon/internal/services"
)

// APIError is a refusal reported by the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s: HTTP %d", e.Method, e.Code)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// classify maps an API refusal onto the service error taxonomy.
func classify(method string, status int, header http.Header, body apiResponse) error {
	code := body.ErrorCode
	if code == 0 {
		code = status
	}
	apiErr := &APIError{Method: method, Code: code, Description: strings.TrimSpace(body.Description)}
	desc := strings.ToLower(apiErr.Description)

	switch {
	case code == http.StatusTooManyRequests:
		return &services.RateLimitError{RetryAfter: retryAfter(header, body), Err: apiErr}
	case code == http.StatusRequestEntityTooLarge || strings.Contains(desc, "too large") || strings.Contains(desc, "too big"):
		return services.Wrap(services.ErrDelivery, "", method, "File is too large for Telegram", apiErr)
	case code == http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, "", method, "Bot token was rejected", apiErr)
	case code == http.StatusForbidden:
		return services.Wrap(services.ErrDelivery, "", method, "Bot cannot write to this chat", apiErr)
	default:
		msg := apiErr.Description
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", code)
		}
		return services.Wrap(services.ErrDelivery, "", method, msg, apiErr)
	}
}

func retryAfter(header http.Header, body apiResponse) time.Duration {
	if body.Parameters != nil && body.Parameters.RetryAfter > 0 {
		return time.Duration(body.Parameters.RetryAfter) * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
