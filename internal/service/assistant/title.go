package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

const (
	DefaultTitle   = "New Conversation"
	maxTitleRunes  = 50
	truncatedRunes = 47
)

// Chatter is the raw chat call the title generator needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []*schema.Message) (*schema.Message, error)
}

type titleGenerator struct {
	chat Chatter
}

func NewTitleGenerator(chat Chatter) TitleGenerator {
	return &titleGenerator{chat: chat}
}

func (g *titleGenerator) GenerateTitle(ctx context.Context, firstMessage, model string) (string, error) {
	if strings.TrimSpace(firstMessage) == "" {
		return DefaultTitle, nil
	}
	prompt := fmt.Sprintf("Generate a short, descriptive title (max 6 words) for a conversation that starts with: \"%s\". Only return the title, nothing else.", firstMessage)
	resp, err := g.chat.Chat(ctx, model, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("generate title failed: %w", err)
	}
	return cleanTitle(resp.Content), nil
}

// cleanTitle strips quotes and whitespace and caps the length.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'`")
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		return string(runes[:truncatedRunes]) + "..."
	}
	return title
}
