package assistant

import (
	"context"
	"sort"

	"geminichat/internal/models"
)

// UsageSummary is the read-side rollup of a session's usage rows.
type UsageSummary struct {
	TotalTokens         int            `json:"totalTokens"`
	TotalMessages       int            `json:"totalMessages"`
	TotalConversations  int            `json:"totalConversations"`
	AverageResponseTime float64        `json:"averageResponseTime"`
	Daily               []DailyUsage   `json:"daily"`
	ByModel             map[string]int `json:"byModel"`
}

type DailyUsage struct {
	Date          string `json:"date"` // YYYY-MM-DD, UTC
	Tokens        int    `json:"tokens"`
	Messages      int    `json:"messages"`
	Conversations int    `json:"conversations"`
}

// ListUsage returns the session's usage rows in recording order.
func (s *Service) ListUsage(ctx context.Context, sessionID string) ([]models.UsageStat, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	return b.ListUsage(), nil
}

// UsageTotals summarises the session's usage rows. The conversation total is
// the number of live conversations.
func (s *Service) UsageTotals(ctx context.Context, sessionID string) (*UsageSummary, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	summary := SummarizeUsage(b.ListUsage(), len(b.ListConversations()))
	return &summary, nil
}

// SummarizeUsage sums rows into totals, UTC day buckets and per-model counts.
func SummarizeUsage(rows []models.UsageStat, conversations int) UsageSummary {
	out := UsageSummary{
		TotalConversations: conversations,
		Daily:              []DailyUsage{},
		ByModel:            map[string]int{},
	}
	days := map[string]*DailyUsage{}
	var (
		responseSum float64
		timed       int
	)
	for _, row := range rows {
		out.TotalTokens += row.TokensUsed
		out.TotalMessages += row.MessagesExchanged
		if row.AverageResponseTime > 0 {
			responseSum += row.AverageResponseTime
			timed++
		}
		for m, n := range row.ModelsUsed {
			out.ByModel[m] += n
		}

		key := row.Date.UTC().Format("2006-01-02")
		day, ok := days[key]
		if !ok {
			day = &DailyUsage{Date: key}
			days[key] = day
		}
		day.Tokens += row.TokensUsed
		day.Messages += row.MessagesExchanged
		day.Conversations += row.ConversationsCreated
	}
	if timed > 0 {
		out.AverageResponseTime = responseSum / float64(timed)
	}
	for _, day := range days {
		out.Daily = append(out.Daily, *day)
	}
	sort.Slice(out.Daily, func(i, j int) bool { return out.Daily[i].Date < out.Daily[j].Date })
	return out
}
