package models

import "time"

// ConversationStatus is the state of a clarification conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
	ConversationCancelled ConversationStatus = "cancelled"
)

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	RoleBot  TurnRole = "bot"
	RoleUser TurnRole = "user"
)

// Turn is one message in a clarification conversation.
type Turn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an interactive clarification thread opened by the Redo
// action. One active conversation per (chat, message) source pair.
type Conversation struct {
	ID              string             `json:"id"`
	DraftID         int64              `json:"draft_id"`
	SourceChatID    int64              `json:"source_chat_id"`
	SourceMessageID int                `json:"source_message_id"`
	Status          ConversationStatus `json:"status"`
	Turns           []Turn             `json:"turns"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
