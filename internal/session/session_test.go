package session_test

import (
	"fmt"
	"testing"
	"time"

	"tankobon/internal/archive"
	"tankobon/internal/session"
	"tankobon/internal/sources"
	"tankobon/internal/testsupport"
)

func TestPutGetRoundTrip(t *testing.T) {
	cache := session.New(session.Options{Size: 8, TTL: time.Minute})

	a := cache.Put(session.Entry{Kind: session.KindManga, RequesterID: 1, SourceID: "demo", ID: "https://x/m/1", Title: "One"})
	b := cache.Put(session.Entry{Kind: session.KindChapter, RequesterID: 1, SourceID: "demo", ID: "https://x/c/1"})
	if a == b {
		t.Fatalf("keys collide: %q", a)
	}
	if len(a) > 16 {
		t.Fatalf("key %q too long for callback data", a)
	}

	got, ok := cache.Get(a)
	if !ok || got.Title != "One" || got.Kind != session.KindManga {
		t.Fatalf("Get(%q) = %+v, %v", a, got, ok)
	}
	if _, ok := cache.Get("zz999"); ok {
		t.Fatal("unknown key resolved")
	}
}

func TestCacheIsBounded(t *testing.T) {
	cache := session.New(session.Options{Size: 2, TTL: time.Minute})
	first := cache.Put(session.Entry{Kind: session.KindSearch, Query: "a"})
	cache.Put(session.Entry{Kind: session.KindSearch, Query: "b"})
	cache.Put(session.Entry{Kind: session.KindSearch, Query: "c"})

	if cache.Len() != 2 {
		t.Fatalf("Len = %d, want 2", cache.Len())
	}
	if _, ok := cache.Get(first); ok {
		t.Fatal("oldest entry survived eviction")
	}
}

func TestCacheEntriesExpire(t *testing.T) {
	cache := session.New(session.Options{Size: 8, TTL: 20 * time.Millisecond})
	key := cache.Put(session.Entry{Kind: session.KindSearch, Query: "a"})

	testsupport.Eventually(t, 2*time.Second, "entry never expired", func() bool {
		_, ok := cache.Get(key)
		return !ok
	})
}

func TestFormatPreferences(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Output.DefaultFormats = []string{"cbz", "pdf"}
	cache, err := session.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}

	if got := cache.Formats(5).String(); got != "cbz,pdf" {
		t.Fatalf("default formats = %q", got)
	}
	set, ok := cache.ToggleFormat(5, archive.FormatPDF)
	if !ok || set.String() != "cbz" {
		t.Fatalf("toggle pdf off = %q, %v", set, ok)
	}
	if _, ok := cache.ToggleFormat(5, archive.FormatArchive); ok {
		t.Fatal("removing the last format must be refused")
	}
	if got := cache.Formats(5).String(); got != "cbz" {
		t.Fatalf("formats after refused toggle = %q", got)
	}
	if got := cache.Formats(6).String(); got != "cbz,pdf" {
		t.Fatalf("other requester affected: %q", got)
	}
}

func TestNewFromConfigRejectsUnknownFormat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Output.DefaultFormats = []string{"epub"}
	if _, err := session.NewFromConfig(cfg); err == nil {
		t.Fatal("expected error for unknown default format")
	}
}

func TestPaginate(t *testing.T) {
	chapters := make([]sources.Chapter, 45)
	for i := range chapters {
		chapters[i] = sources.Chapter{ID: fmt.Sprint(i), Title: fmt.Sprintf("Chapter %d", i+1)}
	}

	tests := []struct {
		n, wantNumber, wantLen, wantOffset int
		prev, next                         bool
	}{
		{0, 0, 20, 0, false, true},
		{1, 1, 20, 20, true, true},
		{2, 2, 5, 40, true, false},
		{9, 2, 5, 40, true, false},
		{-3, 0, 20, 0, false, true},
	}
	for _, tt := range tests {
		page := session.Paginate(chapters, tt.n, 20)
		if page.Number != tt.wantNumber || len(page.Chapters) != tt.wantLen || page.Offset != tt.wantOffset {
			t.Errorf("Paginate(n=%d) = number %d len %d offset %d", tt.n, page.Number, len(page.Chapters), page.Offset)
		}
		if page.HasPrev() != tt.prev || page.HasNext() != tt.next || page.Total != 3 {
			t.Errorf("Paginate(n=%d) navigation = prev %v next %v total %d", tt.n, page.HasPrev(), page.HasNext(), page.Total)
		}
	}

	if empty := session.Paginate(nil, 0, 20); len(empty.Chapters) != 0 || empty.HasNext() || empty.HasPrev() {
		t.Fatalf("empty page = %+v", empty)
	}
}
