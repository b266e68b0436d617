package session

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"tankobon/internal/archive"
	"tankobon/internal/config"
	"tankobon/internal/sources"
)

// Kind says what a keyboard entry points at.
type Kind string

const (
	KindSearch  Kind = "search"
	KindManga   Kind = "manga"
	KindChapter Kind = "chapter"
	KindList    Kind = "list"
)

// Entry is the state behind one button.
type Entry struct {
	Kind        Kind
	RequesterID int64
	SourceID    string
	// Query is set on search entries.
	Query string
	// ID and Title describe the selected manga or chapter.
	ID    string
	Title string
	// Chapters is set on list entries so paging does not rescrape the site.
	Chapters []sources.Chapter
}

// Cache stores keyboard entries and requester preferences.
type Cache struct {
	entries  *expirable.LRU[string, Entry]
	prefs    *expirable.LRU[int64, archive.FormatSet]
	defaults archive.FormatSet
	pageSize int
	epoch    string
	seq      atomic.Uint64
}

// Options configures New.
type Options struct {
	Size     int
	TTL      time.Duration
	PageSize int
	Defaults archive.FormatSet
}

// New returns an empty cache. A non-positive Size falls back to 1024 and a
// non-positive PageSize to 20.
func New(opts Options) *Cache {
	if opts.Size <= 0 {
		opts.Size = 1024
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.Defaults.Len() == 0 {
		opts.Defaults = archive.NewFormatSet(archive.FormatArchive)
	}
	return &Cache{
		entries:  expirable.NewLRU[string, Entry](opts.Size, nil, opts.TTL),
		prefs:    expirable.NewLRU[int64, archive.FormatSet](opts.Size, nil, 0),
		defaults: opts.Defaults,
		pageSize: opts.PageSize,
		epoch:    newEpoch(),
	}
}

// NewFromConfig builds a cache from the [session] and [output] sections.
func NewFromConfig(cfg *config.Config) (*Cache, error) {
	defaults, err := archive.ParseFormatSet(cfg.Output.DefaultFormats)
	if err != nil {
		return nil, err
	}
	return New(Options{
		Size:     cfg.Session.CacheSize,
		TTL:      time.Duration(cfg.Session.TTLMinutes) * time.Minute,
		PageSize: cfg.Session.PageSize,
		Defaults: defaults,
	}), nil
}

// newEpoch prefixes keys so buttons from a previous process never collide
// with keys handed out by this one.
func newEpoch() string {
	n, err := rand.Int(rand.Reader, big.NewInt(36*36))
	if err != nil {
		n = big.NewInt(time.Now().UnixNano() % (36 * 36))
	}
	epoch := strconv.FormatInt(n.Int64(), 36)
	if len(epoch) < 2 {
		epoch = "0" + epoch
	}
	return epoch
}

// Put stores entry and returns its key.
func (c *Cache) Put(entry Entry) string {
	key := c.epoch + strconv.FormatUint(c.seq.Add(1), 36)
	c.entries.Add(key, entry)
	return key
}

// Get returns the entry under key. Expired, evicted, and foreign keys all
// report false.
func (c *Cache) Get(key string) (Entry, bool) {
	return c.entries.Get(key)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// PageSize is the number of chapters shown per keyboard page.
func (c *Cache) PageSize() int {
	return c.pageSize
}

// Formats returns the requester's output formats, falling back to the
// configured defaults.
func (c *Cache) Formats(requesterID int64) archive.FormatSet {
	if set, ok := c.prefs.Get(requesterID); ok {
		return set
	}
	return c.defaults
}

// ToggleFormat flips f for the requester. Removing the last format is
// refused so every selection produces at least one job.
func (c *Cache) ToggleFormat(requesterID int64, f archive.Format) (archive.FormatSet, bool) {
	current := c.Formats(requesterID)
	next := current.Toggle(f)
	if next.Len() == 0 {
		return current, false
	}
	c.prefs.Add(requesterID, next)
	return next, true
}
