package sources

import "context"

// Manga is one search result. ID is an absolute URL on the source site.
type Manga struct {
	ID    string
	Title string
}

// Chapter is one entry of a manga's chapter list, oldest first. ID is an
// absolute URL on the source site.
type Chapter struct {
	ID    string
	Title string
}

// Source reads one manga site.
type Source interface {
	ID() string
	Name() string
	Search(ctx context.Context, query string) ([]Manga, error)
	ListChapters(ctx context.Context, mangaID string) ([]Chapter, error)
	ListPages(ctx context.Context, chapterID string) ([]string, error)
}
