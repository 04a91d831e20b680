package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xaenox/afisha-bot/internal/models"
)

func newDraft(chatID int64, messageID int, title string, start time.Time) *models.Draft {
	return &models.Draft{
		SourceChatID:    chatID,
		SourceMessageID: messageID,
		Title:           title,
		StartTime:       start,
		EndTime:         start.Add(2 * time.Hour),
		Status:          models.StatusPending,
	}
}

func TestHasDuplicateDraft(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	start := time.Date(2024, 12, 10, 16, 0, 0, 0, time.UTC)

	d := newDraft(-100, 1, "Концерт в ДК", start)
	if err := s.CreateDraft(ctx, d); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		title string
		start time.Time
		want  bool
	}{
		{"exact match", "Концерт в ДК", start, true},
		{"case-insensitive", "КОНЦЕРТ В ДК", start, true},
		{"trimmed", "  Концерт в ДК ", start, true},
		{"different title", "Лекция", start, false},
		{"different start", "Концерт в ДК", start.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasDuplicateDraft(ctx, tt.title, tt.start)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("HasDuplicateDraft(%q, %v) = %v, want %v", tt.title, tt.start, got, tt.want)
			}
		})
	}
}

func TestHasDuplicateDraftIgnoresRejected(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	start := time.Date(2024, 12, 10, 16, 0, 0, 0, time.UTC)

	d := newDraft(-100, 1, "Концерт", start)
	if err := s.CreateDraft(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateDraftStatus(ctx, d.ID, models.StatusRejected); err != nil {
		t.Fatal(err)
	}

	got, err := s.HasDuplicateDraft(ctx, "концерт", start)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("rejected draft should not count as duplicate")
	}
}

func TestUpdateDraftStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    models.DraftStatus
		to      models.DraftStatus
		wantErr bool
	}{
		{"pending to new", models.StatusPending, models.StatusNew, false},
		{"pending to rejected", models.StatusPending, models.StatusRejected, false},
		{"pending to sent", models.StatusPending, models.StatusSent, false},
		{"new to sent", models.StatusNew, models.StatusSent, false},
		{"new to duplicate", models.StatusNew, models.StatusDuplicate, false},
		{"new back to pending", models.StatusNew, models.StatusPending, true},
		{"sent to rejected", models.StatusSent, models.StatusRejected, true},
		{"rejected to new", models.StatusRejected, models.StatusNew, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStorage()
			ctx := context.Background()
			d := newDraft(-1, 1, "t", time.Now())
			d.Status = tt.from
			if err := s.CreateDraft(ctx, d); err != nil {
				t.Fatal(err)
			}

			err := s.UpdateDraftStatus(ctx, d.ID, tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			got, _ := s.GetDraft(ctx, d.ID)
			if got.Status != tt.to {
				t.Errorf("status = %s, want %s", got.Status, tt.to)
			}
		})
	}
}

func TestFindPhotoHostByTime(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	d := newDraft(-100, 10, "host", time.Now())
	if err := s.CreateDraft(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindPhotoHostByTime(ctx, -100, time.Now(), 5*time.Second)
	if err != nil {
		t.Fatalf("expected host, got %v", err)
	}
	if got.ID != d.ID {
		t.Errorf("host id = %d, want %d", got.ID, d.ID)
	}

	// Different chat misses.
	if _, err := s.FindPhotoHostByTime(ctx, -200, time.Now(), 5*time.Second); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong chat should miss, got %v", err)
	}

	// Outside the window misses.
	if _, err := s.FindPhotoHostByTime(ctx, -100, time.Now().Add(time.Minute), 5*time.Second); !errors.Is(err, ErrNotFound) {
		t.Errorf("outside window should miss, got %v", err)
	}

	// Terminal statuses are not hosts.
	if err := s.UpdateDraftStatus(ctx, d.ID, models.StatusRejected); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindPhotoHostByTime(ctx, -100, time.Now(), 5*time.Second); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected draft should not host photos, got %v", err)
	}
}

func TestFindPhotoHostByMessageID(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	far := newDraft(-100, 100, "far", time.Now())
	near := newDraft(-100, 108, "near", time.Now())
	for _, d := range []*models.Draft{far, near} {
		if err := s.CreateDraft(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.FindPhotoHostByMessageID(ctx, -100, 110, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != near.ID {
		t.Errorf("expected nearest host %d, got %d", near.ID, got.ID)
	}

	if _, err := s.FindPhotoHostByMessageID(ctx, -100, 200, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("out-of-span lookup should miss, got %v", err)
	}
}

func TestAppendToGalleryPromotesCover(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	d := newDraft(-1, 1, "t", time.Now())
	if err := s.CreateDraft(ctx, d); err != nil {
		t.Fatal(err)
	}

	if err := s.AppendToGallery(ctx, d.ID, models.ImageRef{FileID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendToGallery(ctx, d.ID, models.ImageRef{FileID: "b"}); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetDraft(ctx, d.ID)
	if got.CoverImage == nil || got.CoverImage.FileID != "a" {
		t.Errorf("first image should become cover, got %+v", got.CoverImage)
	}
	if len(got.Gallery) != 1 || got.Gallery[0].FileID != "b" {
		t.Errorf("second image should land in gallery, got %+v", got.Gallery)
	}
}

func TestAppendToGalleryIgnoresRedeliveredImage(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	d := newDraft(-1, 1, "t", time.Now())
	if err := s.CreateDraft(ctx, d); err != nil {
		t.Fatal(err)
	}

	// A redelivered photo message carries the same file id.
	for _, fileID := range []string{"a", "b", "a", "b"} {
		if err := s.AppendToGallery(ctx, d.ID, models.ImageRef{FileID: fileID}); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := s.GetDraft(ctx, d.ID)
	if got.CoverImage == nil || got.CoverImage.FileID != "a" {
		t.Errorf("cover = %+v", got.CoverImage)
	}
	if len(got.Gallery) != 1 || got.Gallery[0].FileID != "b" {
		t.Errorf("duplicates must not grow the gallery, got %+v", got.Gallery)
	}
}

func TestDecisionRecordLifecycle(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	d := newDraft(-1, 1, "t", time.Now())
	if err := s.CreateDraft(ctx, d); err != nil {
		t.Fatal(err)
	}

	rec := &models.DecisionRecord{
		ID:           uuid.New().String(),
		DraftID:      d.ID,
		OriginalText: "текст",
		Predicted:    models.Decision{Verdict: models.VerdictApproved, Confidence: 0.9},
		HumanVerdict: models.VerdictApproved,
	}
	if err := s.CreateDecisionRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if err := s.SetHumanVerdict(ctx, d.ID, models.VerdictRejected); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendFeedback(ctx, d.ID, "неверная дата"); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendFeedback(ctx, d.ID, "и место"); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDecisionByDraft(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.HumanVerdict != models.VerdictRejected {
		t.Errorf("human verdict = %s", got.HumanVerdict)
	}
	if got.Feedback != "неверная дата\nи место" {
		t.Errorf("feedback = %q", got.Feedback)
	}

	recent, err := s.GetRecentReviewed(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Errorf("expected 1 reviewed record, got %d", len(recent))
	}
}

func TestGetRecentReviewedSkipsUnreviewed(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := newDraft(-1, i+1, "t", time.Now())
		if err := s.CreateDraft(ctx, d); err != nil {
			t.Fatal(err)
		}
		rec := &models.DecisionRecord{ID: uuid.New().String(), DraftID: d.ID}
		if i < 2 {
			rec.HumanVerdict = models.VerdictApproved
		}
		if err := s.CreateDecisionRecord(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := s.GetRecentReviewed(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 reviewed records, got %d", len(recent))
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	conv := &models.Conversation{
		ID:              uuid.New().String(),
		DraftID:         1,
		SourceChatID:    -100,
		SourceMessageID: 5,
		Status:          models.ConversationActive,
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	if err := s.AddTurn(ctx, conv.ID, models.Turn{Role: models.RoleBot, Content: "что исправить?", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetActiveConversation(ctx, -100, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Turns) != 1 || got.Turns[0].Role != models.RoleBot {
		t.Errorf("unexpected turns: %+v", got.Turns)
	}

	if err := s.SetConversationStatus(ctx, conv.ID, models.ConversationCompleted); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetActiveConversation(ctx, -100, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("completed conversation should not be active, got %v", err)
	}
}
