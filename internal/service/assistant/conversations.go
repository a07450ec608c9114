package assistant

import (
	"context"
	"fmt"
	"strings"

	"geminichat/internal/models"
)

// ListConversations returns the session's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, sessionID string) ([]models.Conversation, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	return b.ListConversations(), nil
}

func (s *Service) GetConversation(ctx context.Context, sessionID, id string) (*models.Conversation, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	c, ok := b.GetConversation(id)
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (s *Service) CreateConversation(ctx context.Context, sessionID string, in models.NewConversation) (*models.Conversation, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Model = strings.TrimSpace(in.Model)
	if err := models.Validate(in); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidRequest)
	}
	c := b.CreateConversation(in)
	return &c, nil
}

// UpdateConversation applies patch. An empty patch only refreshes updatedAt.
func (s *Service) UpdateConversation(ctx context.Context, sessionID, id string, patch models.ConversationPatch) (*models.Conversation, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	if err := models.Validate(patch); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidRequest)
	}
	c, ok := b.UpdateConversation(id, patch)
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

// DeleteConversation removes the conversation and all of its messages.
func (s *Service) DeleteConversation(ctx context.Context, sessionID, id string) error {
	b, err := s.bundle(sessionID)
	if err != nil {
		return err
	}
	if !b.DeleteConversation(id) {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMessages returns the conversation's messages oldest first. Unknown
// conversations yield an empty list.
func (s *Service) ListMessages(ctx context.Context, sessionID, conversationID string) ([]*models.Message, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	return b.ListMessages(conversationID), nil
}

func (s *Service) UpdateMessage(ctx context.Context, sessionID, id string, patch models.MessagePatch) (*models.Message, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	if err := models.Validate(patch); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidRequest)
	}
	if patch.Content != nil && strings.TrimSpace(*patch.Content) == "" {
		return nil, fmt.Errorf("content cannot be blank: %w", ErrInvalidRequest)
	}
	m, ok := b.UpdateMessage(id, patch)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (s *Service) DeleteMessage(ctx context.Context, sessionID, id string) error {
	b, err := s.bundle(sessionID)
	if err != nil {
		return err
	}
	if !b.DeleteMessage(id) {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}
