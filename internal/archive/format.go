package archive

import (
	"fmt"
	"sort"
	"strings"
)

// Format identifies an output container.
type Format string

const (
	// FormatArchive is a CBZ: a ZIP of zero-padded page images.
	FormatArchive Format = "cbz"
	// FormatPDF is a PDF with one image per page.
	FormatPDF Format = "pdf"
	// FormatWebPage is a hosted web reader page. No packer produces it.
	FormatWebPage Format = "web"
)

var formatOrder = map[Format]int{
	FormatArchive: 0,
	FormatPDF:     1,
	FormatWebPage: 2,
}

// ParseFormat converts a configuration or callback value into a Format.
func ParseFormat(value string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := formatOrder[f]; !ok {
		return "", fmt.Errorf("unknown output format %q", value)
	}
	return f, nil
}

// Extension returns the file extension for artifacts of this format.
func (f Format) Extension() string {
	switch f {
	case FormatPDF:
		return ".pdf"
	case FormatWebPage:
		return ".html"
	default:
		return ".cbz"
	}
}

// Label returns a short human-readable name.
func (f Format) Label() string {
	switch f {
	case FormatArchive:
		return "CBZ"
	case FormatPDF:
		return "PDF"
	case FormatWebPage:
		return "Web page"
	default:
		return string(f)
	}
}

// FormatSet is a set of output formats with explicit membership toggles.
// The zero value is an empty set.
type FormatSet struct {
	members map[Format]struct{}
}

// NewFormatSet returns a set containing formats.
func NewFormatSet(formats ...Format) FormatSet {
	var s FormatSet
	for _, f := range formats {
		s = s.Add(f)
	}
	return s
}

// ParseFormatSet builds a set from configuration names.
func ParseFormatSet(names []string) (FormatSet, error) {
	var s FormatSet
	for _, name := range names {
		f, err := ParseFormat(name)
		if err != nil {
			return FormatSet{}, err
		}
		s = s.Add(f)
	}
	return s, nil
}

func (s FormatSet) clone() FormatSet {
	out := FormatSet{members: make(map[Format]struct{}, len(s.members)+1)}
	for f := range s.members {
		out.members[f] = struct{}{}
	}
	return out
}

// Has reports membership.
func (s FormatSet) Has(f Format) bool {
	_, ok := s.members[f]
	return ok
}

// Add returns a copy of s including f.
func (s FormatSet) Add(f Format) FormatSet {
	out := s.clone()
	out.members[f] = struct{}{}
	return out
}

// Remove returns a copy of s without f.
func (s FormatSet) Remove(f Format) FormatSet {
	out := s.clone()
	delete(out.members, f)
	return out
}

// Toggle returns a copy of s with the membership of f flipped.
func (s FormatSet) Toggle(f Format) FormatSet {
	if s.Has(f) {
		return s.Remove(f)
	}
	return s.Add(f)
}

// Len returns the number of members.
func (s FormatSet) Len() int {
	return len(s.members)
}

// Formats returns the members in a stable order.
func (s FormatSet) Formats() []Format {
	out := make([]Format, 0, len(s.members))
	for f := range s.members {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return formatOrder[out[i]] < formatOrder[out[j]]
	})
	return out
}

func (s FormatSet) String() string {
	formats := s.Formats()
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, ",")
}
