package sources_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tankobon/internal/config"
	"tankobon/internal/services"
	"tankobon/internal/sources"
	"tankobon/internal/testsupport"
)

func newDemoRegistry(t *testing.T, pages int) (*sources.Registry, *httptest.Server) {
	t.Helper()
	site := testsupport.NewSiteServer(t, pages)
	cfg := testsupport.NewConfig(t, testsupport.WithSource("demo", site.URL))
	return sources.NewRegistryFromConfig(cfg, nil), site
}

func TestHTMLSourceBrowse(t *testing.T) {
	registry, site := newDemoRegistry(t, 4)
	ctx := context.Background()

	src, err := registry.Get("demo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if src.Name() != "Demo" {
		t.Fatalf("Name = %q", src.Name())
	}

	results, err := src.Search(ctx, "tank")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != site.URL+"/manga/tank-one" || results[0].Title != "tank One" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}

	chapters, err := src.ListChapters(ctx, results[0].ID)
	if err != nil {
		t.Fatalf("ListChapters: %v", err)
	}
	if len(chapters) != 3 {
		t.Fatalf("got %d chapters", len(chapters))
	}
	for i, ch := range chapters {
		want := fmt.Sprintf("Chapter %d", i+1)
		if ch.Title != want || ch.ID != fmt.Sprintf("%s/chapter/%d", site.URL, i+1) {
			t.Fatalf("chapter %d = %+v, want %s oldest first", i, ch, want)
		}
	}

	pages, err := registry.ListPages(ctx, "demo", chapters[0].ID)
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 4 {
		t.Fatalf("got %d pages, want 4", len(pages))
	}
	for i, page := range pages {
		if want := fmt.Sprintf("/pages/%04d.png", i+1); len(page) < len(want) || page[len(page)-len(want):] != want {
			t.Fatalf("page %d = %q, want suffix %q", i, page, want)
		}
	}
}

func TestRegistryUnknownSource(t *testing.T) {
	registry := sources.NewRegistry()
	if _, err := registry.Get("nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
	if _, err := registry.ListPages(context.Background(), "nope", "https://x.example/c/1"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("ListPages = %v, want ErrNotFound", err)
	}
}

func TestHTMLSourceMissingChapter(t *testing.T) {
	registry, site := newDemoRegistry(t, 1)
	_, err := registry.ListPages(context.Background(), "demo", site.URL+"/chapter/abc")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("ListPages = %v, want ErrNotFound", err)
	}
}

func TestHTMLSourceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	src := sources.NewHTMLSource(config.Source{ID: "x", Name: "x", BaseURL: server.URL, PageImage: "img"}, sources.HTMLOptions{})
	_, err := src.ListPages(context.Background(), server.URL+"/chapter/1")
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("ListPages = %v, want ErrFetch", err)
	}
	if msg := services.Details(err).Message; msg != "X returned HTTP 403" {
		t.Fatalf("message = %q", msg)
	}
}

func TestHTMLSourceRanksAndResolves(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/find":
			fmt.Fprint(w, `<ul>
<li><a href="m/naruto-gaiden">Naruto   Gaiden</a></li>
<li><a href="/m/one-piece#top">One Piece</a></li>
<li><a href="#">Broken</a></li>
<li><a href="/m/piece-of-cake" title="Piece of Cake"></a></li>
<li><a href="/m/one-piece">One Piece (dup)</a></li>
</ul>`)
		case "/m/one-piece/1":
			fmt.Fprint(w, `<div id="pages">
<img src="p/1.jpg"><img alt="ad"><img src="https://cdn.example/2.webp"></div>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	src := sources.NewHTMLSource(config.Source{
		ID:         "alt",
		Name:       "Alt Site",
		BaseURL:    server.URL,
		SearchPath: "/find?q=%s",
		SearchItem: "li",
		SearchLink: "a",
		PageImage:  "#pages img",
	}, sources.HTMLOptions{UserAgent: "tankobon-test"})

	results, err := src.Search(context.Background(), "one piece")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []sources.Manga{
		{ID: server.URL + "/m/one-piece", Title: "One Piece"},
		{ID: server.URL + "/m/piece-of-cake", Title: "Piece of Cake"},
		{ID: server.URL + "/m/naruto-gaiden", Title: "Naruto Gaiden"},
	}
	if len(results) != len(want) {
		t.Fatalf("results = %+v", results)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("result %d = %+v, want %+v", i, results[i], want[i])
		}
	}

	pages, err := src.ListPages(context.Background(), server.URL+"/m/one-piece/1")
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 2 || pages[0] != server.URL+"/m/one-piece/p/1.jpg" || pages[1] != "https://cdn.example/2.webp" {
		t.Fatalf("pages = %v", pages)
	}

	if _, err := src.Search(context.Background(), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty search = %v, want ErrValidation", err)
	}
}
