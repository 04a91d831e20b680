package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/afisha-bot/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a status update violates the
// forward-only draft lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// DraftStorage persists draft events and answers the pipeline's lookup
// queries (idempotency, deduplication, photo grouping).
type DraftStorage interface {
	CreateDraft(ctx context.Context, draft *models.Draft) error
	GetDraft(ctx context.Context, id int64) (*models.Draft, error)

	// FindDraftBySource looks up the draft created from a specific source
	// message, used to make re-delivery idempotent. Returns ErrNotFound
	// when no draft exists.
	FindDraftBySource(ctx context.Context, chatID int64, messageID int) (*models.Draft, error)

	// HasDuplicateDraft reports whether a non-REJECTED draft exists with a
	// case-insensitive-equal title and exactly-equal start time.
	HasDuplicateDraft(ctx context.Context, title string, start time.Time) (bool, error)

	// FindPhotoHostByTime finds a PENDING or NEW draft from the same chat
	// created within the window around ts. Returns ErrNotFound when none.
	FindPhotoHostByTime(ctx context.Context, chatID int64, ts time.Time, window time.Duration) (*models.Draft, error)

	// FindPhotoHostByMessageID finds a PENDING or NEW draft from the same
	// chat whose source message id is within span of messageID.
	FindPhotoHostByMessageID(ctx context.Context, chatID int64, messageID, span int) (*models.Draft, error)

	// UpdateDraftStatus applies a lifecycle transition, returning
	// ErrInvalidTransition when the lifecycle table forbids it.
	UpdateDraftStatus(ctx context.Context, id int64, next models.DraftStatus) error

	// UpdateDraftFields replaces the draft's content fields in place
	// (title, times, venue, city, description, admin notes), leaving the
	// status untouched. Used by the Redo flow.
	UpdateDraftFields(ctx context.Context, draft *models.Draft) error

	AppendToGallery(ctx context.Context, id int64, ref models.ImageRef) error

	// ReplaceImages persists materialized image refs after upload.
	ReplaceImages(ctx context.Context, id int64, cover *models.ImageRef, gallery []models.ImageRef) error
	ListDraftsByStatus(ctx context.Context, status models.DraftStatus, limit int) ([]*models.Draft, error)
}

// DecisionStorage is the append-mostly learning store.
type DecisionStorage interface {
	CreateDecisionRecord(ctx context.Context, rec *models.DecisionRecord) error
	GetDecisionByDraft(ctx context.Context, draftID int64) (*models.DecisionRecord, error)

	// GetRecentReviewed returns the most recent human-reviewed records,
	// newest first, capped at limit. Fed to the decision stage as precedent.
	GetRecentReviewed(ctx context.Context, limit int) ([]models.DecisionRecord, error)

	SetHumanVerdict(ctx context.Context, draftID int64, verdict models.Verdict) error
	AppendFeedback(ctx context.Context, draftID int64, feedback string) error
}

// ConversationStorage persists clarification conversations for the Redo flow.
type ConversationStorage interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error

	// GetActiveConversation returns the single active conversation for a
	// source message, or ErrNotFound.
	GetActiveConversation(ctx context.Context, chatID int64, messageID int) (*models.Conversation, error)

	AddTurn(ctx context.Context, conversationID string, turn models.Turn) error
	SetConversationStatus(ctx context.Context, conversationID string, status models.ConversationStatus) error
}

// ChannelStorage reads the monitored-channel registry. Channel lifecycle is
// managed by admin tooling, the pipeline only reads it.
type ChannelStorage interface {
	GetChannelByChatID(ctx context.Context, chatID int64) (*models.Channel, error)
	GetCity(ctx context.Context, id int64) (*models.City, error)
	ListActiveChannels(ctx context.Context) ([]*models.Channel, error)
}

type Storage interface {
	DraftStorage
	DecisionStorage
	ConversationStorage
	ChannelStorage
	Close() error
}
