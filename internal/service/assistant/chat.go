package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"geminichat/internal/models"
	"geminichat/internal/store"
)

// GenerationFailedMessage is reported to the client when the reply could not
// be produced; the user message is kept.
const GenerationFailedMessage = "Failed to generate AI response. Please try again."

type SendMessageInput struct {
	Role    models.Role `json:"role" binding:"required,oneof=user assistant"`
	Content string      `json:"content" binding:"required"`
}

// SendMessageResult carries either AssistantMessage or Error, never both.
type SendMessageResult struct {
	UserMessage      *models.Message `json:"userMessage"`
	AssistantMessage *models.Message `json:"assistantMessage,omitempty"`
	Error            string          `json:"error,omitempty"`
	Title            string          `json:"title,omitempty"`

	// GenerationErr is the underlying failure behind Error, wrapping
	// ErrUpstreamGeneration.
	GenerationErr error `json:"-"`
}

// SendMessage stores the message, names the conversation on its first user
// message, asks the model for a reply and records usage. The work runs on the
// session's queue with a context detached from ctx and bounded by the
// generation timeout, so a caller going away never leaves it half done.
func (s *Service) SendMessage(ctx context.Context, sessionID, conversationID string, in SendMessageInput) (*SendMessageResult, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("role %q: %w", in.Role, ErrInvalidRequest)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("content cannot be blank: %w", ErrInvalidRequest)
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	value, err := s.run(jobCtx, sessionID, func(ctx context.Context) (interface{}, error) {
		return s.sendMessage(ctx, b, conversationID, in)
	})
	if err != nil {
		return nil, err
	}
	return value.(*SendMessageResult), nil
}

func (s *Service) sendMessage(ctx context.Context, b *store.Bundle, conversationID string, in SendMessageInput) (*SendMessageResult, error) {
	conv, ok := b.GetConversation(conversationID)
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	logger := s.logger.With(zap.String("session_id", b.SessionID()), zap.String("conversation_id", conv.ID))

	userMsg := b.CreateMessage(models.NewMessage{
		ConversationID: conv.ID,
		Role:           in.Role,
		Content:        in.Content,
	})
	b.UpdateConversation(conv.ID, models.ConversationPatch{})
	result := &SendMessageResult{UserMessage: userMsg}

	if s.titler != nil && b.CountMessages(conv.ID, models.RoleUser) == 1 {
		title, err := s.titler.GenerateTitle(ctx, in.Content, conv.Model)
		switch {
		case err != nil:
			logger.Warn("title generation failed", zap.Error(err))
		case title != "":
			if updated, ok := b.UpdateConversation(conv.ID, models.ConversationPatch{Title: &title}); ok {
				result.Title = updated.Title
				logger.Debug("conversation titled", zap.String("title", title))
			}
		}
	}

	gen, err := s.generator.Generate(ctx, in.Content, conv.Model)
	if err != nil {
		logger.Error("ai response generation failed", zap.String("model", conv.Model), zap.Error(err))
		result.Error = GenerationFailedMessage
		result.GenerationErr = fmt.Errorf("%w: %v", ErrUpstreamGeneration, err)
		return result, nil
	}

	tokens := gen.TokensUsed
	responseTime := gen.ResponseTimeMs
	result.AssistantMessage = b.CreateMessage(models.NewMessage{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        gen.Text,
		Tokens:         &tokens,
		ResponseTime:   &responseTime,
	})
	b.UpdateConversation(conv.ID, models.ConversationPatch{})
	b.RecordUsage(models.UsageInput{
		MessagesExchanged:   1,
		TokensUsed:          tokens,
		AverageResponseTime: float64(responseTime),
		ModelsUsed:          map[string]int{conv.Model: 1},
	})
	logger.Info("message answered",
		zap.String("model", conv.Model),
		zap.Int("tokens", tokens),
		zap.Int64("response_time_ms", responseTime))
	return result, nil
}
