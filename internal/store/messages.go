package store

import (
	"sort"

	"geminichat/internal/models"
)

// ListMessages returns a conversation's messages in ascending timestamp order.
// Unknown conversations yield an empty list.
func (b *Bundle) ListMessages(conversationID string) []*models.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.threads[conversationID]
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.messages[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// CountMessages counts a conversation's messages carrying role.
func (b *Bundle) CountMessages(conversationID string, role models.Role) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, id := range b.threads[conversationID] {
		if b.messages[id].Role == role {
			n++
		}
	}
	return n
}

func (b *Bundle) GetMessage(id string) (*models.Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.messages[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// CreateMessage inserts a message. It does not check that the conversation
// exists; that is the caller's job.
func (b *Bundle) CreateMessage(in models.NewMessage) *models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := &models.Message{
		ID:             newID(),
		ConversationID: in.ConversationID,
		SessionID:      b.sessionID,
		Role:           in.Role,
		Content:        in.Content,
		Timestamp:      b.stamp(),
		Tokens:         in.Tokens,
		ResponseTime:   in.ResponseTime,
	}
	stored := m.Clone()
	b.messages[m.ID] = stored
	b.threads[m.ConversationID] = append(b.threads[m.ConversationID], m.ID)
	return m
}

// UpdateMessage applies an edit, reaction or bookmark change. Editing the
// content keeps the first version in OriginalContent.
func (b *Bundle) UpdateMessage(id string, patch models.MessagePatch) (*models.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.messages[id]
	if !ok {
		return nil, false
	}
	if patch.Content != nil && *patch.Content != m.Content {
		if m.OriginalContent == nil {
			original := m.Content
			m.OriginalContent = &original
		}
		m.Content = *patch.Content
		m.IsEdited = true
	}
	if patch.IsEdited != nil {
		m.IsEdited = *patch.IsEdited
	}
	if patch.IsBookmarked != nil {
		m.IsBookmarked = *patch.IsBookmarked
	}
	if patch.Reactions != nil {
		if m.Reactions == nil {
			m.Reactions = &models.Reactions{}
		}
		if patch.Reactions.Like != nil {
			v := *patch.Reactions.Like
			m.Reactions.Like = &v
		}
		if patch.Reactions.Dislike != nil {
			v := *patch.Reactions.Dislike
			m.Reactions.Dislike = &v
		}
	}
	now := b.stamp()
	m.UpdatedAt = &now
	return m.Clone(), true
}

func (b *Bundle) DeleteMessage(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.messages[id]
	if !ok {
		return false
	}
	delete(b.messages, id)
	thread := b.threads[m.ConversationID]
	for i, mid := range thread {
		if mid == id {
			b.threads[m.ConversationID] = append(thread[:i], thread[i+1:]...)
			break
		}
	}
	return true
}
