package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/models"
)

func testDraft() *models.Draft {
	start := time.Date(2024, 12, 10, 16, 0, 0, 0, time.UTC)
	return &models.Draft{
		Title:      "Концерт",
		StartTime:  start,
		EndTime:    start.Add(2 * time.Hour),
		Venue:      "ДК Ленсовета",
		CoverImage: &models.ImageRef{URL: "https://cdn/x.jpg"},
	}
}

func TestSubmitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing auth header")
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload["title"] != "Концерт" {
			t.Errorf("title = %v", payload["title"])
		}
		if payload["cover_image"] != "https://cdn/x.jpg" {
			t.Errorf("cover_image = %v", payload["cover_image"])
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"event_id":"ev-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	res, err := c.Submit(context.Background(), testDraft())
	if err != nil {
		t.Fatal(err)
	}
	if res.EventID != "ev-1" || res.IsDuplicate {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSubmitDuplicateIsNotAnError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"conflict status", http.StatusConflict, `{"is_duplicate":true}`},
		{"duplicate flag", http.StatusOK, `{"success":false,"is_duplicate":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "tok", zap.NewNop())
			res, err := c.Submit(context.Background(), testDraft())
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsDuplicate {
				t.Error("expected duplicate result")
			}
		})
	}
}

func TestSubmitServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	if _, err := c.Submit(context.Background(), testDraft()); err == nil {
		t.Fatal("expected error on server failure")
	}
}

func TestUploadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["source_url"] != "https://t.me/file/1" {
			t.Errorf("source_url = %q", req["source_url"])
		}
		w.Write([]byte(`{"url":"https://cdn/permanent.jpg"}`))
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, "tok", zap.NewNop())
	got, err := u.UploadFromURL(context.Background(), "https://t.me/file/1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://cdn/permanent.jpg" {
		t.Errorf("url = %q", got)
	}
}

func TestUploadFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, "tok", zap.NewNop())
	if _, err := u.UploadFromURL(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
