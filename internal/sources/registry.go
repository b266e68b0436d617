package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tankobon/internal/config"
	"tankobon/internal/httpclient"
	"tankobon/internal/logging"
	"tankobon/internal/services"
)

// Registry holds the configured sources keyed by id.
type Registry struct {
	byID  map[string]Source
	order []string
}

// NewRegistry registers sources in the given order. A later source with a
// duplicate id replaces the earlier one.
func NewRegistry(list ...Source) *Registry {
	r := &Registry{byID: make(map[string]Source, len(list))}
	for _, src := range list {
		if src == nil {
			continue
		}
		if _, exists := r.byID[src.ID()]; !exists {
			r.order = append(r.order, src.ID())
		}
		r.byID[src.ID()] = src
	}
	return r
}

// NewRegistryFromConfig builds an HTMLSource for every [[sources]] entry. All
// sources share one retrying HTTP client.
func NewRegistryFromConfig(cfg *config.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := httpclient.NewStandard(httpclient.Options{
		Timeout:      time.Duration(cfg.Fetch.RequestTimeout) * time.Second,
		RetryMax:     cfg.Fetch.PageRetries,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		Logger:       logger,
	})
	list := make([]Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		list = append(list, NewHTMLSource(sc, HTMLOptions{
			Client:    client,
			UserAgent: cfg.Fetch.UserAgent,
			Logger:    logging.NewComponentLogger(logger, "source."+sc.ID),
		}))
	}
	return NewRegistry(list...)
}

// Get returns the source registered under id.
func (r *Registry) Get(id string) (Source, error) {
	if r != nil {
		if src, ok := r.byID[id]; ok {
			return src, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "", "lookup source", fmt.Sprintf("Unknown source %q", id), nil)
}

// List returns the registered sources in registration order.
func (r *Registry) List() []Source {
	if r == nil {
		return nil
	}
	out := make([]Source, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns the registered ids sorted alphabetically.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// Len reports how many sources are registered.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// ListPages resolves a chapter's page URLs through the source that owns it.
func (r *Registry) ListPages(ctx context.Context, sourceID, chapterID string) ([]string, error) {
	src, err := r.Get(sourceID)
	if err != nil {
		return nil, err
	}
	return src.ListPages(ctx, chapterID)
}
