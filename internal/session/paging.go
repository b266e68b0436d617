package session

import "tankobon/internal/sources"

// Page is one screen of a chapter list.
type Page struct {
	Chapters []sources.Chapter
	// Offset is the index of Chapters[0] in the full list.
	Offset int
	Number int
	Total  int
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool { return p.Number > 0 }

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool { return p.Number < p.Total-1 }

// Paginate returns page number n of chapters with size entries each. n is
// clamped into range.
func Paginate(chapters []sources.Chapter, n, size int) Page {
	if size <= 0 {
		size = 20
	}
	total := (len(chapters) + size - 1) / size
	if total == 0 {
		return Page{Total: 0}
	}
	n = min(max(n, 0), total-1)
	start := n * size
	end := min(start+size, len(chapters))
	return Page{
		Chapters: chapters[start:end],
		Offset:   start,
		Number:   n,
		Total:    total,
	}
}
