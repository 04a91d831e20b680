package models

import (
	"strings"
	"time"
)

// DraftStatus is the lifecycle state of a draft event.
type DraftStatus string

const (
	// StatusPending — waiting for a moderator decision.
	StatusPending DraftStatus = "PENDING"
	// StatusNew — accepted (by a moderator or the agent) and ready to submit.
	StatusNew DraftStatus = "NEW"
	// StatusRejected — declined, kept for the learning history.
	StatusRejected DraftStatus = "REJECTED"
	// StatusDuplicate — the downstream catalog already has this event.
	StatusDuplicate DraftStatus = "DUPLICATE"
	// StatusSent — submitted to the catalog successfully.
	StatusSent DraftStatus = "SENT"
)

// transitions is the forward-only lifecycle table. No state re-enters PENDING.
var transitions = map[DraftStatus][]DraftStatus{
	StatusPending:   {StatusNew, StatusRejected, StatusDuplicate, StatusSent},
	StatusNew:       {StatusRejected, StatusDuplicate, StatusSent},
	StatusRejected:  {},
	StatusDuplicate: {},
	StatusSent:      {},
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s DraftStatus) CanTransitionTo(next DraftStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s DraftStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Actionable reports whether a moderator action may still change the draft.
func (s DraftStatus) Actionable() bool {
	return s == StatusPending || s == StatusNew
}

// ImageRef is either a permanent remote URL or a transport file id that
// still has to be materialized at approve time.
type ImageRef struct {
	URL    string `json:"url,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// Uploaded reports whether the image already lives at a permanent URL.
func (r ImageRef) Uploaded() bool {
	return r.URL != ""
}

// Draft is the central entity of the pipeline: one candidate event extracted
// from one source post, moving through the moderation lifecycle.
type Draft struct {
	ID              int64       `json:"id"`
	SourceChatID    int64       `json:"source_chat_id"`
	SourceMessageID int         `json:"source_message_id"`
	ChannelID       int64       `json:"channel_id"`
	Title           string      `json:"title"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	Venue           string      `json:"venue,omitempty"`
	CityName        string      `json:"city_name,omitempty"`
	Description     string      `json:"description,omitempty"`
	CoverImage      *ImageRef   `json:"cover_image,omitempty"`
	Gallery         []ImageRef  `json:"gallery,omitempty"`
	SourceLink      string      `json:"source_link,omitempty"`
	AdminNotes      string      `json:"admin_notes,omitempty"`
	Status          DraftStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NormalizeTitle is the canonical form used by the deduplication check:
// case-insensitive, trimmed. Richer normalization than a raw equality index
// is the reason dedup is a query, not a uniqueness constraint.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// AddImage appends an image, promoting the first one to cover. An image the
// draft already holds is skipped, so a re-delivered photo message does not
// grow the gallery.
func (d *Draft) AddImage(ref ImageRef) {
	if d.CoverImage == nil {
		d.CoverImage = &ref
		return
	}
	if *d.CoverImage == ref {
		return
	}
	for _, g := range d.Gallery {
		if g == ref {
			return
		}
	}
	d.Gallery = append(d.Gallery, ref)
}

// Images returns cover plus gallery in order.
func (d *Draft) Images() []ImageRef {
	if d.CoverImage == nil {
		return d.Gallery
	}
	return append([]ImageRef{*d.CoverImage}, d.Gallery...)
}
