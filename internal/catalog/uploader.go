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
)

// Uploader materializes transient image payloads to the CDN. Called only at
// approve time, never at draft creation.
type Uploader struct {
	uploadURL string
	token     string
	client    *http.Client
	logger    *zap.Logger
}

func NewUploader(uploadURL, token string, logger *zap.Logger) *Uploader {
	return &Uploader{
		uploadURL: uploadURL,
		token:     token,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    logger,
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// UploadFromURL tells the CDN to ingest the image at sourceURL (a transient
// Telegram file URL) and returns the permanent URL.
func (u *Uploader) UploadFromURL(ctx context.Context, sourceURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"source_url": sourceURL})
	if err != nil {
		return "", fmt.Errorf("marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.token)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload failed: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("upload response missing url")
	}
	return parsed.URL, nil
}
