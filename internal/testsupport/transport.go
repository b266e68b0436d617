package testsupport

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"
)

// Event kinds recorded by Transport.
const (
	EventText = "text"
	EventEdit = "edit"
	EventFile = "file"
)

// Event is one successful outbound call captured by Transport.
type Event struct {
	Kind      string
	ChatID    int64
	MessageID int64
	Text      string
	FileName  string
	Data      []byte
	At        time.Time
}

// Transport records messages and files instead of talking to a chat service.
// FileErrs are returned by successive SendFile calls before they start
// succeeding; TextErr, when set, fails every SendText.
type Transport struct {
	FileErrs []error
	TextErr  error

	mu           sync.Mutex
	nextID       int64
	events       []Event
	fileAttempts []time.Time
}

// SendText records a message and returns its id.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.TextErr != nil {
		return 0, t.TextErr
	}
	t.nextID++
	t.events = append(t.events, Event{Kind: EventText, ChatID: chatID, MessageID: t.nextID, Text: text, At: time.Now()})
	return t.nextID, nil
}

// EditText records an edit.
func (t *Transport) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{Kind: EventEdit, ChatID: chatID, MessageID: messageID, Text: text, At: time.Now()})
	return nil
}

// SendFile reads the file at path so it can be inspected after the sender
// deletes it.
func (t *Transport) SendFile(ctx context.Context, chatID int64, path, fileName, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fileAttempts = append(t.fileAttempts, time.Now())
	if len(t.FileErrs) > 0 {
		err := t.FileErrs[0]
		t.FileErrs = t.FileErrs[1:]
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	t.events = append(t.events, Event{Kind: EventFile, ChatID: chatID, Text: caption, FileName: fileName, Data: data, At: time.Now()})
	return nil
}

// Events returns every recorded call in order.
func (t *Transport) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Filter returns the recorded calls of one kind.
func (t *Transport) Filter(kind string) []Event {
	var out []Event
	for _, ev := range t.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Texts returns the bodies of messages sent (not edited) to chatID.
func (t *Transport) Texts(chatID int64) []string {
	var out []string
	for _, ev := range t.Filter(EventText) {
		if ev.ChatID == chatID {
			out = append(out, ev.Text)
		}
	}
	return out
}

// FileAttempts returns when each SendFile call was made, failed or not.
func (t *Transport) FileAttempts() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Time, len(t.fileAttempts))
	copy(out, t.fileAttempts)
	return out
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(tb testing.TB, timeout time.Duration, msg string, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	tb.Fatalf("condition not met within %s: %s", timeout, msg)
}
