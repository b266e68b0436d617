package fetch

import (
	"errors"
	"fmt"
)

var errEmptyBody = errors.New("empty response body")

// Error describes why a single page could not be downloaded.
type Error struct {
	Index      int
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("page %d: HTTP %d", e.Index+1, e.StatusCode)
	}
	return fmt.Sprintf("page %d: %v", e.Index+1, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Failures returns the errors of every failed slot in page order.
func Failures(slots []Slot) []*Error {
	var out []*Error
	for _, slot := range slots {
		if slot.Err != nil {
			out = append(out, slot.Err)
		}
	}
	return out
}

// Summarize returns nil when every slot succeeded. Otherwise it returns an
// error naming the first failed page and how many others failed; it wraps the
// first *Error so callers can inspect it with errors.As and errors.Is.
func Summarize(slots []Slot) error {
	failures := Failures(slots)
	if len(failures) == 0 {
		return nil
	}
	first := failures[0]
	msg := fmt.Sprintf("page %d of %d", first.Index+1, len(slots))
	if first.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", first.StatusCode)
	} else if first.Err != nil {
		msg += ": " + first.Err.Error()
	}
	if extra := len(failures) - 1; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return &summaryError{msg: msg, first: first}
}

type summaryError struct {
	msg   string
	first *Error
}

func (e *summaryError) Error() string { return e.msg }

func (e *summaryError) Unwrap() error { return e.first }
