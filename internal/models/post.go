package models

import "time"

// PostKind tags the canonical shape of an inbound post.
type PostKind int

const (
	PostText PostKind = iota
	PostPhoto
	PostTextWithPhoto
)

// InboundPost is the canonical post record the pipeline operates on.
// The transport boundary normalizes every delivery shape (text message,
// bare photo, photo with caption) into this one form before the pipeline
// sees it.
type InboundPost struct {
	Kind       PostKind
	ChatID     int64
	MessageID  int
	Text       string
	PhotoRef   ImageRef
	SourceLink string
	ReceivedAt time.Time
}

// HasText reports whether the post carries any usable text.
func (p InboundPost) HasText() bool {
	return p.Kind == PostText || p.Kind == PostTextWithPhoto
}

// HasPhoto reports whether the post carries an image.
func (p InboundPost) HasPhoto() bool {
	return p.Kind == PostPhoto || p.Kind == PostTextWithPhoto
}
