package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/xaenox/afisha-bot/internal/models"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseExtraction(t *testing.T) {
	raw := `{
		"title": "Концерт",
		"start_time": "2024-12-10T16:00:00Z",
		"end_time": null,
		"venue": "ДК Ленсовета",
		"city_name": null,
		"description": " live show "
	}`

	ex, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if ex.Title != "Концерт" {
		t.Errorf("title = %q", ex.Title)
	}
	if ex.StartTime == nil || !ex.StartTime.Equal(time.Date(2024, 12, 10, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("start_time = %v", ex.StartTime)
	}
	if ex.EndTime != nil {
		t.Errorf("end_time should be nil, got %v", ex.EndTime)
	}
	if ex.Venue != "ДК Ленсовета" {
		t.Errorf("venue = %q", ex.Venue)
	}
	if ex.Description != "live show" {
		t.Errorf("description not trimmed: %q", ex.Description)
	}
}

func TestParseExtractionOffsetNormalizedToUTC(t *testing.T) {
	ex, err := parseExtraction(`{"start_time": "2024-12-10T19:00:00+03:00"}`)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 12, 10, 16, 0, 0, 0, time.UTC)
	if ex.StartTime == nil || !ex.StartTime.Equal(want) || ex.StartTime.Location() != time.UTC {
		t.Errorf("start_time = %v, want %v in UTC", ex.StartTime, want)
	}
}

func TestParseExtractionBadTimestampIgnored(t *testing.T) {
	ex, err := parseExtraction(`{"title":"x","start_time":"завтра"}`)
	if err != nil {
		t.Fatal(err)
	}
	if ex.StartTime != nil {
		t.Errorf("unparseable timestamp should yield nil, got %v", ex.StartTime)
	}
}

func TestFormatHistoryCapsAndFeedback(t *testing.T) {
	recs := []models.DecisionRecord{
		{Extracted: models.Extraction{Title: "A"}, HumanVerdict: models.VerdictApproved},
		{Extracted: models.Extraction{Title: "B"}, HumanVerdict: models.VerdictRejected, Feedback: "wrong date"},
	}
	out := formatHistory(recs)
	if !strings.Contains(out, "verdict=APPROVED") || !strings.Contains(out, "feedback=wrong date") {
		t.Errorf("unexpected history format:\n%s", out)
	}
	if formatHistory(nil) != "" {
		t.Error("empty history should format to empty string")
	}
}

func TestFormatExtractionNulls(t *testing.T) {
	out := formatExtraction(models.Extraction{Title: "X"})
	if !strings.Contains(out, "title: X") || !strings.Contains(out, "start_time: null") {
		t.Errorf("unexpected extraction format:\n%s", out)
	}
}
