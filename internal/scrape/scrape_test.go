package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const filmsPage = `<!DOCTYPE html><html><body>
<table class="infobox"><tr><td>ignore me</td></tr></table>
<table class="wikitable sortable plainrowheaders">
<caption>Highest-grossing films<sup>[1]</sup></caption>
<tr><th>Rank</th><th>Peak</th><th>Title</th><th>Worldwide gross</th><th>Year</th><th>Ref</th></tr>
<tr><td>1</td><td>1</td><th scope="row"><i><a href="/wiki/Avatar">Avatar</a></i></th><td>$2,923,706,026</td><td>2009</td><td><sup>[# 1]</sup></td></tr>
<tr><td>2</td><td>1</td><th scope="row"><i>Avengers: Endgame</i></th><td>$2,797,501,328</td><td>2019</td><td></td></tr>
<tr><td>3</td><td rowspan="2">1</td><th scope="row"><i>Titanic</i></th><td><span style="display:none">7002</span>$2,264,743,305</td><td>1997</td><td></td></tr>
<tr><td>4</td><th scope="row"><i>Star Wars: The Force Awakens</i></th><td>$2,071,310,218</td><td>2015</td><td></td></tr>
</table>
</body></html>`

func TestExtractTable_Wikitable(t *testing.T) {
	tbl, err := ExtractTable([]byte(filmsPage), "wikitable")
	if err != nil {
		t.Fatalf("ExtractTable: %v", err)
	}
	if tbl.Name != "Highest-grossing films" {
		t.Errorf("caption: got %q", tbl.Name)
	}
	want := []string{"Rank", "Peak", "Title", "Worldwide gross", "Year", "Ref"}
	if strings.Join(tbl.Header, "|") != strings.Join(want, "|") {
		t.Fatalf("header: got %v", tbl.Header)
	}
	if len(tbl.Rows) != 4 {
		t.Fatalf("rows: got %d, want 4", len(tbl.Rows))
	}
	if got := tbl.Rows[0][3]; got != "$2,923,706,026" {
		t.Errorf("gross: got %q", got)
	}
	if got := tbl.Rows[0][5]; got != "" {
		t.Errorf("reference not stripped: %q", got)
	}
	if got := tbl.Rows[2][3]; got != "$2,264,743,305" {
		t.Errorf("hidden sort key leaked: %q", got)
	}
	// rowspan carried into the next row
	if got := tbl.Rows[3]; got[1] != "1" || got[2] != "Star Wars: The Force Awakens" || got[4] != "2015" {
		t.Errorf("rowspan not expanded: %v", got)
	}
}

func TestExtractTable_FallbackAndMissing(t *testing.T) {
	var b strings.Builder
	b.WriteString("<table><tr><th>a</th><th>b</th></tr>")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "<tr><td colspan=\"2\">%d</td></tr>", i)
	}
	b.WriteString("</table>")
	tbl, err := ExtractTable([]byte(b.String()), "wikitable")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if len(tbl.Rows) != 12 || tbl.Rows[5][1] != "5" {
		t.Fatalf("colspan not expanded: %v", tbl.Rows[5])
	}
	_, err = ExtractTable([]byte("<p>nothing here</p>"), "wikitable")
	if !errors.Is(err, ErrNoTable) {
		t.Fatalf("expected ErrNoTable, got %v", err)
	}
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(filmsPage))
	}))
	defer srv.Close()

	f := NewFetcher(2*time.Second, 3, 5*time.Millisecond, 20*time.Millisecond)
	body, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(string(body), "wikitable") {
		t.Fatalf("unexpected body")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, 3, time.Millisecond, time.Millisecond)
	_, err := f.Fetch(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("404 retried: %d calls", n)
	}
}

func TestFetch_RetryAfterHonored(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 2, time.Millisecond, time.Millisecond)
	start := time.Now()
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected ~1s wait from Retry-After, got %v", elapsed)
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f := NewFetcher(time.Second, 5, time.Second, 2*time.Second)
	_, err := f.Fetch(ctx, srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
