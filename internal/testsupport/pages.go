package testsupport

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// PNG returns an encoded solid-color image.
func PNG(t testing.TB, width, height int, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// PageServerOptions configures NewPageServer.
type PageServerOptions struct {
	Pages int
	// Delay is applied to every response before the body is written.
	Delay time.Duration
	// FailStatus maps a 0-based page index to the HTTP status it returns.
	FailStatus map[int]int
	// Block, when non-nil, holds every request until it is closed or the
	// client goes away.
	Block chan struct{}
}

// PageServer serves numbered PNG pages at /pages/NNNN.png and records the
// peak number of concurrent requests.
type PageServer struct {
	*httptest.Server

	opts  PageServerOptions
	image []byte

	mu       sync.Mutex
	inFlight int
	peak     int
	requests int
}

// NewPageServer starts a page server and registers cleanup.
func NewPageServer(t testing.TB, opts PageServerOptions) *PageServer {
	t.Helper()

	s := &PageServer{
		opts:  opts,
		image: PNG(t, 4, 6, color.RGBA{R: 200, G: 40, B: 40, A: 255}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *PageServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.inFlight++
	s.requests++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.opts.Block != nil {
		select {
		case <-s.opts.Block:
		case <-r.Context().Done():
			return
		}
	}
	if s.opts.Delay > 0 {
		select {
		case <-time.After(s.opts.Delay):
		case <-r.Context().Done():
			return
		}
	}

	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/pages/"), ".png")
	number, err := strconv.Atoi(name)
	if err != nil || number < 1 || number > s.opts.Pages {
		http.NotFound(w, r)
		return
	}
	if status, ok := s.opts.FailStatus[number-1]; ok {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(s.image)
}

// URLs returns the page URLs in page order.
func (s *PageServer) URLs() []string {
	urls := make([]string, s.opts.Pages)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/pages/%04d.png", s.URL, i+1)
	}
	return urls
}

// Image returns the bytes served for every successful page.
func (s *PageServer) Image() []byte {
	return s.image
}

// Peak returns the highest number of concurrent requests observed.
func (s *PageServer) Peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Requests returns the total number of requests served.
func (s *PageServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
