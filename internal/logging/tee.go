package logging

import (
	"context"
	"log/slog"
)

// teeBranch is one destination of a teeHandler. An events branch only takes
// records tagged with event_type, or at warn level and above, so the
// per-run events file stays a timeline rather than a copy of the console.
type teeBranch struct {
	handler slog.Handler
	events  bool
	tagged  bool
}

func (b teeBranch) accepts(record slog.Record) bool {
	if !b.events || b.tagged || record.Level >= slog.LevelWarn {
		return true
	}
	return hasEventType(record)
}

type teeHandler struct {
	branches []teeBranch
}

func newTeeHandler(branches ...teeBranch) slog.Handler {
	kept := make([]teeBranch, 0, len(branches))
	for _, b := range branches {
		if b.handler != nil {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return NoopHandler{}
	}
	if len(kept) == 1 && !kept[0].events {
		return kept[0].handler
	}
	return &teeHandler{branches: kept}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, b := range h.branches {
		if b.handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	last := len(h.branches) - 1
	for i, b := range h.branches {
		if !b.handler.Enabled(ctx, record.Level) || !b.accepts(record) {
			continue
		}
		rec := record
		if i < last {
			rec = record.Clone()
		}
		if err := b.handler.Handle(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	tagged := false
	for _, a := range attrs {
		if a.Key == FieldEventType {
			tagged = true
			break
		}
	}
	next := make([]teeBranch, len(h.branches))
	for i, b := range h.branches {
		next[i] = teeBranch{handler: b.handler.WithAttrs(attrs), events: b.events, tagged: b.tagged || tagged}
	}
	return &teeHandler{branches: next}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]teeBranch, len(h.branches))
	for i, b := range h.branches {
		next[i] = teeBranch{handler: b.handler.WithGroup(name), events: b.events, tagged: b.tagged}
	}
	return &teeHandler{branches: next}
}

func hasEventType(record slog.Record) bool {
	found := false
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == FieldEventType {
			found = true
			return false
		}
		return true
	})
	return found
}

// WithEventLog keeps base unchanged and also sends job and daemon events to
// events: records carrying event_type, plus every warning and error.
func WithEventLog(base *slog.Logger, events slog.Handler) *slog.Logger {
	branches := []teeBranch{{handler: events, events: true}}
	if base != nil {
		branches = append([]teeBranch{{handler: base.Handler()}}, branches...)
	}
	return slog.New(newTeeHandler(branches...))
}
