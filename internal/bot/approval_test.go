package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/catalog"
	"github.com/xaenox/afisha-bot/internal/metrics"
	"github.com/xaenox/afisha-bot/internal/models"
	"github.com/xaenox/afisha-bot/internal/storage"
)

type fakeResolver struct{}

func (fakeResolver) FileURL(fileID string) (string, error) {
	return "https://files.telegram/" + fileID, nil
}

type fakeNotifier struct{ published []string }

func (f *fakeNotifier) Publish(summary string) { f.published = append(f.published, summary) }

type approvalEnv struct {
	store       *storage.MemoryStorage
	approval    *Approval
	notifier    *fakeNotifier
	submissions *int64
}

func newApprovalEnv(t *testing.T, catalogHandler http.HandlerFunc) (*approvalEnv, func()) {
	t.Helper()
	var submissions int64

	mux := http.NewServeMux()
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&submissions, 1)
		catalogHandler(w, r)
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"https://cdn/uploaded.jpg"}`))
	})
	srv := httptest.NewServer(mux)

	store := storage.NewMemoryStorage()
	notifier := &fakeNotifier{}
	approval := NewApproval(
		store,
		catalog.NewUploader(srv.URL+"/upload", "tok", zap.NewNop()),
		catalog.NewClient(srv.URL, "tok", zap.NewNop()),
		fakeResolver{},
		notifier,
		metrics.New(prometheus.NewRegistry()),
		zap.NewNop(),
	)

	return &approvalEnv{
		store:       store,
		approval:    approval,
		notifier:    notifier,
		submissions: &submissions,
	}, srv.Close
}

func pendingDraft(t *testing.T, store *storage.MemoryStorage) *models.Draft {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2024, 12, 10, 16, 0, 0, 0, time.UTC)
	draft := &models.Draft{
		SourceChatID:    -1,
		SourceMessageID: 1,
		Title:           "Концерт",
		StartTime:       start,
		EndTime:         start.Add(2 * time.Hour),
		Venue:           "ДК Ленсовета",
		CoverImage:      &models.ImageRef{FileID: "file-1"},
		Status:          models.StatusPending,
	}
	if err := store.CreateDraft(ctx, draft); err != nil {
		t.Fatal(err)
	}
	rec := &models.DecisionRecord{
		ID:           uuid.New().String(),
		DraftID:      draft.ID,
		Predicted:    models.Decision{Verdict: models.VerdictApproved, Confidence: 0.6},
		HumanVerdict: models.VerdictApproved,
	}
	if err := store.CreateDecisionRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	return draft
}

func okCatalog(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusCreated)
	w.Write([]byte(`{"success":true,"event_id":"ev-1"}`))
}

func TestApproveHappyPath(t *testing.T) {
	env, closeSrv := newApprovalEnv(t, okCatalog)
	defer closeSrv()
	ctx := context.Background()
	draft := pendingDraft(t, env.store)

	outcome, err := env.approval.Approve(ctx, draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != ApproveSubmitted {
		t.Fatalf("outcome = %s", outcome)
	}

	got, _ := env.store.GetDraft(ctx, draft.ID)
	if got.Status != models.StatusSent {
		t.Errorf("status = %s, want SENT", got.Status)
	}
	if got.CoverImage == nil || got.CoverImage.URL != "https://cdn/uploaded.jpg" {
		t.Errorf("cover not materialized: %+v", got.CoverImage)
	}
	if len(env.notifier.published) != 1 {
		t.Errorf("expected 1 notification, got %d", len(env.notifier.published))
	}

	rec, _ := env.store.GetDecisionByDraft(ctx, draft.ID)
	if rec.HumanVerdict != models.VerdictApproved {
		t.Errorf("human verdict = %s", rec.HumanVerdict)
	}
}

func TestApproveTwiceSubmitsOnce(t *testing.T) {
	env, closeSrv := newApprovalEnv(t, okCatalog)
	defer closeSrv()
	ctx := context.Background()
	draft := pendingDraft(t, env.store)

	if _, err := env.approval.Approve(ctx, draft.ID); err != nil {
		t.Fatal(err)
	}
	outcome, err := env.approval.Approve(ctx, draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != ApproveStale {
		t.Errorf("second approve outcome = %s, want stale", outcome)
	}
	if n := atomic.LoadInt64(env.submissions); n != 1 {
		t.Errorf("expected exactly 1 submission, got %d", n)
	}
}

func TestApproveDuplicateReport(t *testing.T) {
	env, closeSrv := newApprovalEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"is_duplicate":true}`))
	})
	defer closeSrv()
	ctx := context.Background()
	draft := pendingDraft(t, env.store)

	outcome, err := env.approval.Approve(ctx, draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != ApproveDuplicate {
		t.Fatalf("outcome = %s", outcome)
	}

	got, _ := env.store.GetDraft(ctx, draft.ID)
	if got.Status != models.StatusDuplicate {
		t.Errorf("status = %s, want DUPLICATE", got.Status)
	}
	if len(env.notifier.published) != 0 {
		t.Error("duplicate must not notify")
	}
}

func TestApproveSubmissionFailureLeavesStatePreApproval(t *testing.T) {
	env, closeSrv := newApprovalEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"down"}`))
	})
	defer closeSrv()
	ctx := context.Background()
	draft := pendingDraft(t, env.store)

	if _, err := env.approval.Approve(ctx, draft.ID); err == nil {
		t.Fatal("expected retryable error")
	}

	got, _ := env.store.GetDraft(ctx, draft.ID)
	if got.Status != models.StatusPending {
		t.Errorf("status = %s, want PENDING preserved for retry", got.Status)
	}
}

func TestRejectUpdatesVerdict(t *testing.T) {
	env, closeSrv := newApprovalEnv(t, okCatalog)
	defer closeSrv()
	ctx := context.Background()
	draft := pendingDraft(t, env.store)

	acted, err := env.approval.Reject(ctx, draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acted {
		t.Fatal("expected action")
	}

	got, _ := env.store.GetDraft(ctx, draft.ID)
	if got.Status != models.StatusRejected {
		t.Errorf("status = %s", got.Status)
	}
	rec, _ := env.store.GetDecisionByDraft(ctx, draft.ID)
	if rec.HumanVerdict != models.VerdictRejected {
		t.Errorf("human verdict = %s", rec.HumanVerdict)
	}
	if n := atomic.LoadInt64(env.submissions); n != 0 {
		t.Errorf("reject must not submit, got %d submissions", n)
	}

	// Rejecting again is a no-op.
	acted, err = env.approval.Reject(ctx, draft.ID)
	if err != nil {
		t.Fatal(err)
	}
	if acted {
		t.Error("second reject should be stale")
	}
}
