package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

func TestFetchAllCollectsPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Клуб А2</title>
<meta name="description" content="Концертная площадка"></head>
<body><p>Афиша на декабрь</p></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, zap.NewNop())
	pages := f.FetchAll(context.Background(), []string{srv.URL})
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].Title != "Клуб А2" {
		t.Errorf("title = %q", pages[0].Title)
	}
	if pages[0].Description != "Концертная площадка" {
		t.Errorf("description = %q", pages[0].Description)
	}
	if !strings.Contains(pages[0].BodyText, "Афиша на декабрь") {
		t.Errorf("body text missing content: %q", pages[0].BodyText)
	}
}

func TestFetchAllSwallowsFailures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	f := NewFetcher(5*time.Second, zap.NewNop())
	pages := f.FetchAll(context.Background(), []string{bad.URL, good.URL, "http://127.0.0.1:1/nope"})
	if len(pages) != 1 {
		t.Fatalf("expected only the good page, got %d", len(pages))
	}
	if pages[0].URL != good.URL {
		t.Errorf("unexpected page url %q", pages[0].URL)
	}
}

func TestFetchTruncatesLongPageOnRuneBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + strings.Repeat("ф", 9000) + "</p></body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, zap.NewNop())
	pages := f.FetchAll(context.Background(), []string{srv.URL})
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if len(pages[0].BodyText) > maxPageChars {
		t.Errorf("body len = %d, want <= %d", len(pages[0].BodyText), maxPageChars)
	}
	if !utf8.ValidString(pages[0].BodyText) {
		t.Error("truncation split a rune")
	}
}

func TestFetchAllBoundsConcurrency(t *testing.T) {
	var inflight, maxSeen int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inflight, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if cur <= old || atomic.CompareAndSwapInt32(&maxSeen, old, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.Write([]byte("<html><body>x</body></html>"))
	}))
	defer srv.Close()

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = srv.URL
	}

	f := NewFetcher(5*time.Second, zap.NewNop())
	f.FetchAll(context.Background(), urls)

	if m := atomic.LoadInt32(&maxSeen); m > maxConcurrentFetches {
		t.Errorf("saw %d concurrent fetches, limit is %d", m, maxConcurrentFetches)
	}
}

func TestSearcherEmptyKeyReturnsNothing(t *testing.T) {
	s := NewSearcher("", zap.NewNop())
	if got := s.Search(context.Background(), "концерт"); got != "" {
		t.Errorf("expected empty context without api key, got %q", got)
	}
}

func TestSearcherFormatsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "k" {
			t.Errorf("missing subscription token header")
		}
		w.Write([]byte(`{"web":{"results":[{"title":"T","url":"http://e","description":"D"}]}}`))
	}))
	defer srv.Close()

	s := NewSearcher("k", zap.NewNop())
	s.baseURL = srv.URL
	got := s.Search(context.Background(), "концерт ДК Ленсовета")
	if !strings.Contains(got, "T (http://e): D") {
		t.Errorf("unexpected search context: %q", got)
	}
}

func TestSearcherSwallowsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSearcher("k", zap.NewNop())
	s.baseURL = srv.URL
	if got := s.Search(context.Background(), "q"); got != "" {
		t.Errorf("expected empty context on server error, got %q", got)
	}
}
