package testsupport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// NewSiteServer serves a tiny manga site whose markup matches the selectors
// installed by WithSource:
//
//	/search?q=...    two results under div.result
//	/manga/<slug>    chapters newest first under ul.chapters
//	/chapter/<n>     pageCount images under div.reader
//	/pages/NNNN.png  page images
func NewSiteServer(t testing.TB, pageCount int) *httptest.Server {
	t.Helper()

	pages := NewPageServer(t, PageServerOptions{Pages: pageCount})
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body>
<div class="result"><a href="/manga/%[1]s-one">%[1]s One</a></div>
<div class="result"><a href="/manga/%[1]s-two">%[1]s Two</a></div>
</body></html>`, query)
	})
	mux.HandleFunc("/manga/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><ul class="chapters">
<li><a href="/chapter/3">Chapter 3</a></li>
<li><a href="/chapter/2">Chapter 2</a></li>
<li><a href="/chapter/1">Chapter 1</a></li>
</ul></body></html>`)
	})
	mux.HandleFunc("/chapter/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/chapter/")); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		var b strings.Builder
		b.WriteString(`<html><body><div class="reader">`)
		for _, u := range pages.URLs() {
			fmt.Fprintf(&b, `<img data-src="%s" src="/placeholder.gif">`, u)
		}
		b.WriteString(`</div></body></html>`)
		fmt.Fprint(w, b.String())
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}
