package store

import (
	"sort"
	"strings"

	"geminichat/internal/models"
)

// ListConversations returns the session's conversations, most recently
// active first. Ties keep creation order.
func (b *Bundle) ListConversations() []models.Conversation {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Conversation, 0, len(b.convOrder))
	for _, id := range b.convOrder {
		out = append(out, *b.conversations[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// GetConversation returns the conversation or false when this session has none
// with that id.
func (b *Bundle) GetConversation(id string) (models.Conversation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return *c, true
}

func (b *Bundle) CreateConversation(in models.NewConversation) models.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()

	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = models.DefaultModel
	}
	now := b.stamp()
	c := &models.Conversation{
		ID:        newID(),
		SessionID: b.sessionID,
		Title:     in.Title,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.conversations[c.ID] = c
	b.convOrder = append(b.convOrder, c.ID)
	return *c
}

// UpdateConversation merges patch and always refreshes UpdatedAt, even for an
// empty patch.
func (b *Bundle) UpdateConversation(id string, patch models.ConversationPatch) (models.Conversation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Model != nil && strings.TrimSpace(*patch.Model) != "" {
		c.Model = strings.TrimSpace(*patch.Model)
	}
	now := b.stamp()
	if now.Before(c.UpdatedAt) {
		now = c.UpdatedAt
	}
	c.UpdatedAt = now
	return *c, true
}

// DeleteConversation removes the conversation's messages and then the
// conversation itself under a single lock.
func (b *Bundle) DeleteConversation(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, msgID := range b.threads[id] {
		delete(b.messages, msgID)
	}
	delete(b.threads, id)

	if _, ok := b.conversations[id]; !ok {
		return false
	}
	delete(b.conversations, id)
	for i, cid := range b.convOrder {
		if cid == id {
			b.convOrder = append(b.convOrder[:i], b.convOrder[i+1:]...)
			break
		}
	}
	return true
}
