package models

import "time"

// DefaultModel is used when a conversation is created without one.
const DefaultModel = "gemini-1.5-flash"

// Conversation is a titled thread of messages bound to one AI model.
type Conversation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type NewConversation struct {
	Title string `json:"title" binding:"required"`
	Model string `json:"model" binding:"omitempty,chatmodel"`
}

// ConversationPatch lists the conversation fields a client may change.
type ConversationPatch struct {
	Title *string `json:"title,omitempty" binding:"omitempty,min=1"`
	Model *string `json:"model,omitempty" binding:"omitempty,chatmodel"`
}
