package models

import "time"

// UsageStat is one immutable record of a single AI interaction.
type UsageStat struct {
	ID                   string         `json:"id"`
	Date                 time.Time      `json:"date"`
	ConversationsCreated int            `json:"conversationsCreated"`
	MessagesExchanged    int            `json:"messagesExchanged"`
	TokensUsed           int            `json:"tokensUsed"`
	AverageResponseTime  float64        `json:"averageResponseTime"`
	ModelsUsed           map[string]int `json:"modelsUsed"`
}

type UsageInput struct {
	ConversationsCreated int
	MessagesExchanged    int
	TokensUsed           int
	AverageResponseTime  float64
	ModelsUsed           map[string]int
}
