package models

import "time"

// Category is the classification stage's label for an inbound post.
type Category string

const (
	CategoryEvent    Category = "EVENT"
	CategoryGoingOut Category = "GOING_OUT"
	CategoryAd       Category = "AD"
)

// Publishable reports whether the category proceeds to extraction.
func (c Category) Publishable() bool {
	return c == CategoryEvent || c == CategoryGoingOut
}

// Verdict is an approve/reject outcome, predicted by the agent or given by a human.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

// Extraction is the structured candidate produced by the extraction stage.
// Every field is optional; the required-field gate (title + start time) is
// applied by the pipeline, not here.
type Extraction struct {
	Title       string     `json:"title,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Venue       string     `json:"venue,omitempty"`
	CityName    string     `json:"city_name,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Empty reports whether extraction produced nothing usable.
func (e Extraction) Empty() bool {
	return e.Title == "" && e.StartTime == nil
}

// Decision is the agent's verdict on an extracted candidate.
type Decision struct {
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// DecisionRecord is one learning-store entry: what the post said, what was
// extracted, what the agent predicted and what the human eventually decided.
// Created once per source message by the decision stage, updated in place by
// the approval workflow.
type DecisionRecord struct {
	ID              string     `json:"id"`
	DraftID         int64      `json:"draft_id"`
	SourceChatID    int64      `json:"source_chat_id"`
	SourceMessageID int        `json:"source_message_id"`
	OriginalText    string     `json:"original_text"`
	Extracted       Extraction `json:"extracted"`
	Predicted       Decision   `json:"predicted"`
	HumanVerdict    Verdict    `json:"human_verdict"`
	Feedback        string     `json:"feedback,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
