package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role a stored message may carry.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Reactions struct {
	Like    *bool `json:"like,omitempty"`
	Dislike *bool `json:"dislike,omitempty"`
}

// Message is one user or assistant turn inside a conversation.
type Message struct {
	ID              string     `json:"id"`
	ConversationID  string     `json:"conversationId"`
	SessionID       string     `json:"sessionId"`
	Role            Role       `json:"role"`
	Content         string     `json:"content"`
	Timestamp       time.Time  `json:"timestamp"`
	Tokens          *int       `json:"tokens,omitempty"`
	ResponseTime    *int64     `json:"responseTime,omitempty"`
	OriginalContent *string    `json:"originalContent,omitempty"`
	IsEdited        bool       `json:"isEdited"`
	Reactions       *Reactions `json:"reactions,omitempty"`
	IsBookmarked    bool       `json:"isBookmarked"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy so callers never share pointers with the store.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Tokens != nil {
		v := *m.Tokens
		out.Tokens = &v
	}
	if m.ResponseTime != nil {
		v := *m.ResponseTime
		out.ResponseTime = &v
	}
	if m.OriginalContent != nil {
		v := *m.OriginalContent
		out.OriginalContent = &v
	}
	if m.UpdatedAt != nil {
		v := *m.UpdatedAt
		out.UpdatedAt = &v
	}
	if m.Reactions != nil {
		r := Reactions{}
		if m.Reactions.Like != nil {
			v := *m.Reactions.Like
			r.Like = &v
		}
		if m.Reactions.Dislike != nil {
			v := *m.Reactions.Dislike
			r.Dislike = &v
		}
		out.Reactions = &r
	}
	return &out
}

type NewMessage struct {
	ConversationID string
	Role           Role
	Content        string
	Tokens         *int
	ResponseTime   *int64
}

// MessagePatch covers edits, reaction toggles and bookmarks.
type MessagePatch struct {
	Content      *string    `json:"content,omitempty" binding:"omitempty,min=1"`
	IsEdited     *bool      `json:"isEdited,omitempty"`
	Reactions    *Reactions `json:"reactions,omitempty"`
	IsBookmarked *bool      `json:"isBookmarked,omitempty"`
}
