package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBraveURL = "https://api.search.brave.com/res/v1/web/search"

// Searcher queries Brave web search for extra context about a post.
// A missing API key or any failure just means no search context.
type Searcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewSearcher(apiKey string, logger *zap.Logger) *Searcher {
	return &Searcher{
		apiKey:  apiKey,
		baseURL: defaultBraveURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search returns a free-text summary of the top results, or "" on any failure.
func (s *Searcher) Search(ctx context.Context, query string) string {
	if s.apiKey == "" || strings.TrimSpace(query) == "" {
		return ""
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", "5")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("web search failed", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("web search failed", zap.Int("status", resp.StatusCode))
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		s.logger.Debug("failed to parse search response", zap.Error(err))
		return ""
	}
	if len(parsed.Web.Results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nWeb search results:\n")
	for _, r := range parsed.Web.Results {
		b.WriteString(fmt.Sprintf("- %s (%s): %s\n", r.Title, r.URL, r.Description))
	}
	return b.String()
}
