package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	maxConcurrentFetches = 5
	maxPageChars         = 8000
)

// PageContent is what a fetched link contributes to the extraction prompt.
type PageContent struct {
	URL         string
	Title       string
	Description string
	BodyText    string
}

// Fetcher downloads linked pages and converts them to plain text context.
// Everything here is best-effort: a failed fetch only means less context.
type Fetcher struct {
	client *http.Client
	sem    *semaphore.Weighted
	logger *zap.Logger
}

func NewFetcher(timeout time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		sem:    semaphore.NewWeighted(maxConcurrentFetches),
		logger: logger,
	}
}

// FetchAll fetches every URL concurrently, at most maxConcurrentFetches at a
// time, and returns whatever succeeded in input order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []PageContent {
	results := make([]*PageContent, len(urls))
	var wg sync.WaitGroup

	for i, u := range urls {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			defer f.sem.Release(1)

			page, err := f.fetch(ctx, u)
			if err != nil {
				f.logger.Debug("link fetch failed", zap.String("url", u), zap.Error(err))
				return
			}
			results[i] = page
		}(i, u)
	}
	wg.Wait()

	out := make([]PageContent, 0, len(urls))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*PageContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "AfishaBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	html := string(body)
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	if len(md) > maxPageChars {
		// Cut on a rune boundary: markdown from Cyrillic pages is mostly
		// multi-byte and a blind slice would leave invalid UTF-8.
		cut := maxPageChars
		for cut > 0 && !utf8.RuneStart(md[cut]) {
			cut--
		}
		md = md[:cut]
	}

	return &PageContent{
		URL:         rawURL,
		Title:       extractMeta(html, titlePattern),
		Description: extractMeta(html, descPattern),
		BodyText:    strings.TrimSpace(md),
	}, nil
}

var (
	titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	descPattern  = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]+content=["']([^"']*)["']`)
)

func extractMeta(html string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Context renders fetched pages as a block appended to the extraction prompt.
func Context(pages []PageContent) string {
	if len(pages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nLinked pages:\n")
	for _, p := range pages {
		b.WriteString("--- " + p.URL + "\n")
		if p.Title != "" {
			b.WriteString("title: " + p.Title + "\n")
		}
		if p.Description != "" {
			b.WriteString("description: " + p.Description + "\n")
		}
		b.WriteString(p.BodyText + "\n")
	}
	return b.String()
}
