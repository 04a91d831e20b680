package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/afisha-bot/internal/catalog"
	"github.com/xaenox/afisha-bot/internal/metrics"
	"github.com/xaenox/afisha-bot/internal/models"
	"github.com/xaenox/afisha-bot/internal/storage"
)

// FileResolver turns a transport file id into a downloadable URL.
type FileResolver interface {
	FileURL(fileID string) (string, error)
}

// Notifier publishes a human-readable summary after a successful submission.
// Best-effort: implementations swallow their own failures.
type Notifier interface {
	Publish(summary string)
}

// ApproveOutcome tells the moderator what happened to their action.
type ApproveOutcome string

const (
	ApproveSubmitted ApproveOutcome = "submitted"
	ApproveDuplicate ApproveOutcome = "duplicate"
	ApproveStale     ApproveOutcome = "stale"
)

// Approval drives the draft lifecycle on moderator (or agent) decisions:
// re-validation, media materialization, catalog submission and the terminal
// transition, plus the learning-store update.
type Approval struct {
	store    storage.Storage
	uploader *catalog.Uploader
	client   *catalog.Client
	files    FileResolver
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewApproval(
	store storage.Storage,
	uploader *catalog.Uploader,
	client *catalog.Client,
	files FileResolver,
	notifier Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Approval {
	return &Approval{
		store:    store,
		uploader: uploader,
		client:   client,
		files:    files,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Approve runs the accept sub-procedure. A non-actionable draft means the
// action already happened (double click, a second moderator): no state
// mutation, a no-op answer. Submission failure returns an error and leaves
// the draft in its pre-approval state so the button can be retried.
func (a *Approval) Approve(ctx context.Context, draftID int64) (ApproveOutcome, error) {
	draft, err := a.store.GetDraft(ctx, draftID)
	if err != nil {
		return "", fmt.Errorf("load draft %d: %w", draftID, err)
	}
	if !draft.Status.Actionable() {
		a.logger.Info("approve on already-handled draft",
			zap.Int64("draft_id", draftID),
			zap.String("status", string(draft.Status)))
		return ApproveStale, nil
	}

	if err := a.materializeImages(ctx, draft); err != nil {
		a.metrics.SubmissionsTotal.WithLabelValues("upload_failed").Inc()
		return "", fmt.Errorf("materialize images: %w", err)
	}

	result, err := a.client.Submit(ctx, draft)
	if err != nil {
		a.metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("submit draft %d: %w", draftID, err)
	}

	if result.IsDuplicate {
		a.metrics.SubmissionsTotal.WithLabelValues("duplicate").Inc()
		if err := a.store.UpdateDraftStatus(ctx, draftID, models.StatusDuplicate); err != nil {
			return "", fmt.Errorf("mark draft %d duplicate: %w", draftID, err)
		}
		return ApproveDuplicate, nil
	}

	a.metrics.SubmissionsTotal.WithLabelValues("sent").Inc()
	if err := a.store.UpdateDraftStatus(ctx, draftID, models.StatusSent); err != nil {
		return "", fmt.Errorf("mark draft %d sent: %w", draftID, err)
	}

	a.notifier.Publish(fmt.Sprintf("✅ %s — %s (%s)",
		draft.Title, draft.StartTime.Format("02.01 15:04"), draft.Venue))

	if err := a.store.SetHumanVerdict(ctx, draftID, models.VerdictApproved); err != nil {
		a.logger.Error("failed to update decision record",
			zap.Int64("draft_id", draftID),
			zap.Error(err))
	}

	a.logger.Info("draft submitted",
		zap.Int64("draft_id", draftID),
		zap.String("event_id", result.EventID))
	return ApproveSubmitted, nil
}

// AutoApprove is the agent-driven variant used by the pipeline's AUTO route.
func (a *Approval) AutoApprove(ctx context.Context, draft *models.Draft) error {
	outcome, err := a.Approve(ctx, draft.ID)
	if err != nil {
		return err
	}
	if outcome == ApproveStale {
		return fmt.Errorf("draft %d no longer actionable", draft.ID)
	}
	return nil
}

// Reject declines the draft and records the human verdict.
func (a *Approval) Reject(ctx context.Context, draftID int64) (bool, error) {
	draft, err := a.store.GetDraft(ctx, draftID)
	if err != nil {
		return false, fmt.Errorf("load draft %d: %w", draftID, err)
	}
	if !draft.Status.Actionable() {
		return false, nil
	}

	if err := a.store.UpdateDraftStatus(ctx, draftID, models.StatusRejected); err != nil {
		return false, fmt.Errorf("reject draft %d: %w", draftID, err)
	}
	if err := a.store.SetHumanVerdict(ctx, draftID, models.VerdictRejected); err != nil {
		a.logger.Error("failed to update decision record",
			zap.Int64("draft_id", draftID),
			zap.Error(err))
	}
	return true, nil
}

// materializeImages uploads every pending file-id payload to permanent
// storage. A draft whose images are already URLs is a no-op.
func (a *Approval) materializeImages(ctx context.Context, draft *models.Draft) error {
	changed := false

	upload := func(ref *models.ImageRef) error {
		if ref.Uploaded() {
			return nil
		}
		src, err := a.files.FileURL(ref.FileID)
		if err != nil {
			return fmt.Errorf("resolve file %s: %w", ref.FileID, err)
		}
		permanent, err := a.uploader.UploadFromURL(ctx, src)
		if err != nil {
			return fmt.Errorf("upload file %s: %w", ref.FileID, err)
		}
		ref.URL = permanent
		ref.FileID = ""
		changed = true
		return nil
	}

	if draft.CoverImage != nil {
		if err := upload(draft.CoverImage); err != nil {
			return err
		}
	}
	for i := range draft.Gallery {
		if err := upload(&draft.Gallery[i]); err != nil {
			return err
		}
	}

	if changed {
		if err := a.store.ReplaceImages(ctx, draft.ID, draft.CoverImage, draft.Gallery); err != nil {
			return fmt.Errorf("persist uploaded images: %w", err)
		}
	}
	return nil
}
