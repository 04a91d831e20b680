package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/models"
)

// SubmitResult is the downstream catalog's answer to a submission.
type SubmitResult struct {
	EventID     string
	IsDuplicate bool
}

// Client submits approved drafts to the downstream catalog API.
// Submission is the one external call whose failure surfaces to the
// moderator as a retryable error.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// eventPayload is the catalog's wire format for a new event.
type eventPayload struct {
	Title       string   `json:"title"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Venue       string   `json:"venue,omitempty"`
	City        string   `json:"city,omitempty"`
	Description string   `json:"description,omitempty"`
	CoverImage  string   `json:"cover_image,omitempty"`
	Gallery     []string `json:"gallery,omitempty"`
	SourceLink  string   `json:"source_link,omitempty"`
	AdminNotes  string   `json:"admin_notes,omitempty"`
}

type submitResponse struct {
	Success     bool   `json:"success"`
	EventID     string `json:"event_id"`
	IsDuplicate bool   `json:"is_duplicate"`
	Error       string `json:"error"`
}

// Submit sends the draft to the catalog. All image refs must already be
// materialized to permanent URLs.
func (c *Client) Submit(ctx context.Context, draft *models.Draft) (*SubmitResult, error) {
	payload := eventPayload{
		Title:       draft.Title,
		StartTime:   draft.StartTime.UTC().Format(time.RFC3339),
		EndTime:     draft.EndTime.UTC().Format(time.RFC3339),
		Venue:       draft.Venue,
		City:        draft.CityName,
		Description: draft.Description,
		SourceLink:  draft.SourceLink,
		AdminNotes:  draft.AdminNotes,
	}
	if draft.CoverImage != nil {
		payload.CoverImage = draft.CoverImage.URL
	}
	for _, ref := range draft.Gallery {
		if ref.URL != "" {
			payload.Gallery = append(payload.Gallery, ref.URL)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit event: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed submitResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}

	// A duplicate report is a result, not an error.
	if resp.StatusCode == http.StatusConflict || parsed.IsDuplicate {
		return &SubmitResult{IsDuplicate: true}, nil
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("catalog error (status %d): %s", resp.StatusCode, parsed.Error)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("catalog rejected event: %s", parsed.Error)
	}

	return &SubmitResult{EventID: parsed.EventID}, nil
}
