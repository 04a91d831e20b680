package ai

import (
	"context"
	"time"

	"github.com/xaenox/afisha-bot/internal/models"
)

// Classifier labels an inbound post. Implementations never return an error:
// any failure degrades to the AD label so the pipeline fails closed.
type Classifier interface {
	Classify(ctx context.Context, text string) models.Category
}

// Extractor turns post text into a structured event candidate. Implementations
// never return an error: failure yields an all-null Extraction so the pipeline
// can apply the required-field gate uniformly.
type Extractor interface {
	Extract(ctx context.Context, text string, refTime time.Time) models.Extraction
	// Reextract re-runs extraction constrained by a moderator's free-text
	// correction, used by the Redo flow.
	Reextract(ctx context.Context, text string, prior models.Extraction, correction string, refTime time.Time) models.Extraction
}

// Decider predicts whether a moderator would publish the candidate, given a
// window of prior human-reviewed decisions as precedent. Failure defaults to
// REJECTED at confidence 0.5 so errors fail toward human review.
type Decider interface {
	Decide(ctx context.Context, text string, ex models.Extraction, history []models.DecisionRecord) models.Decision
}
