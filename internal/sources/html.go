package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tankobon/internal/config"
	"tankobon/internal/logging"
	"tankobon/internal/services"
	"tankobon/internal/textutil"
)

const maxDocumentBytes = 8 << 20

// HTMLOptions configures NewHTMLSource.
type HTMLOptions struct {
	Client    *http.Client
	UserAgent string
	Logger    *slog.Logger
}

// HTMLSource scrapes a site with the CSS selectors from one [[sources]] entry.
type HTMLSource struct {
	cfg       config.Source
	base      *url.URL
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewHTMLSource builds a source from its configuration. The base URL is
// assumed to have passed config validation.
func NewHTMLSource(cfg config.Source, opts HTMLOptions) *HTMLSource {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if cfg.PageAttr == "" {
		cfg.PageAttr = "src"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		base = &url.URL{}
	}
	return &HTMLSource{
		cfg:       cfg,
		base:      base,
		client:    opts.Client,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
}

// ID returns the configured identifier.
func (s *HTMLSource) ID() string { return s.cfg.ID }

// Name returns the display name.
func (s *HTMLSource) Name() string { return textutil.TitleCase(s.cfg.Name) }

// Search returns the site's results for query, reordered so titles closest to
// the query come first.
func (s *HTMLSource) Search(ctx context.Context, query string) ([]Manga, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "", "search", "Search query is empty", nil)
	}
	path := s.cfg.SearchPath
	if strings.Contains(path, "%s") {
		path = fmt.Sprintf(path, url.QueryEscape(query))
	}
	doc, err := s.document(ctx, "search", path)
	if err != nil {
		return nil, err
	}

	var results []Manga
	seen := make(map[string]struct{})
	doc.Find(s.cfg.SearchItem).Each(func(_ int, item *goquery.Selection) {
		id, title, ok := linkOf(doc.Url, item, s.cfg.SearchLink, s.cfg.SearchTitle)
		if !ok {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		results = append(results, Manga{ID: id, Title: title})
	})
	if len(results) < 2 {
		return results, nil
	}

	titles := make([]string, len(results))
	for i, m := range results {
		titles[i] = m.Title
	}
	ranked := make([]Manga, 0, len(results))
	for _, idx := range textutil.RankByQuery(query, titles) {
		ranked = append(ranked, results[idx])
	}
	return ranked, nil
}

// ListChapters returns the chapters of mangaID, oldest first.
func (s *HTMLSource) ListChapters(ctx context.Context, mangaID string) ([]Chapter, error) {
	doc, err := s.document(ctx, "list chapters", mangaID)
	if err != nil {
		return nil, err
	}
	var chapters []Chapter
	doc.Find(s.cfg.ChapterItem).Each(func(_ int, item *goquery.Selection) {
		id, title, ok := linkOf(doc.Url, item, s.cfg.ChapterLink, s.cfg.ChapterTitle)
		if ok {
			chapters = append(chapters, Chapter{ID: id, Title: title})
		}
	})
	if s.cfg.ReverseChapters {
		slices.Reverse(chapters)
	}
	return chapters, nil
}

// ListPages returns the absolute image URLs of chapterID in reading order.
// Images without the configured attribute are skipped.
func (s *HTMLSource) ListPages(ctx context.Context, chapterID string) ([]string, error) {
	doc, err := s.document(ctx, "list pages", chapterID)
	if err != nil {
		return nil, err
	}
	var pages []string
	doc.Find(s.cfg.PageImage).Each(func(_ int, img *goquery.Selection) {
		raw, ok := img.Attr(s.cfg.PageAttr)
		if !ok {
			return
		}
		if abs, ok := resolve(doc.Url, raw); ok {
			pages = append(pages, abs)
		}
	})
	s.logger.Debug("chapter pages resolved",
		logging.String("chapter", chapterID),
		logging.Int("pages", len(pages)),
	)
	return pages, nil
}

// linkOf reads the href and title inside item. Empty selectors mean the item
// itself.
func linkOf(base *url.URL, item *goquery.Selection, linkSel, titleSel string) (string, string, bool) {
	link := item
	if linkSel != "" {
		link = item.Find(linkSel).First()
	}
	href, ok := link.Attr("href")
	if !ok {
		return "", "", false
	}
	id, ok := resolve(base, href)
	if !ok {
		return "", "", false
	}
	titleNode := link
	if titleSel != "" {
		titleNode = item.Find(titleSel).First()
	}
	title := strings.Join(strings.Fields(titleNode.Text()), " ")
	if title == "" {
		title = strings.Join(strings.Fields(link.AttrOr("title", "")), " ")
	}
	if title == "" {
		return "", "", false
	}
	return id, title, true
}

// resolve turns ref into an absolute http(s) URL against base.
func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "javascript:") {
		return "", false
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(parsed)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func (s *HTMLSource) document(ctx context.Context, op, target string) (*goquery.Document, error) {
	abs, ok := resolve(s.base, target)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", op, fmt.Sprintf("Invalid URL %q", target), nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, abs, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", op, "build request", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrCancelled, "", op, "cancelled", context.Cause(ctx))
		}
		return nil, services.Wrap(services.ErrFetch, "", op, fmt.Sprintf("%s is unreachable", s.Name()), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, services.Wrap(services.ErrNotFound, "", op, fmt.Sprintf("%s returned HTTP 404", s.Name()), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, services.Wrap(services.ErrFetch, "", op, fmt.Sprintf("%s returned HTTP %d", s.Name(), resp.StatusCode), nil)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "", op, "parse HTML", err)
	}
	// Relative links resolve against the page they appear on.
	doc.Url = resp.Request.URL
	return doc, nil
}
