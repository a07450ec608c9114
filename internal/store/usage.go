package store

import "geminichat/internal/models"

// RecordUsage appends one usage row dated now. The recorder does no
// aggregation.
func (b *Bundle) RecordUsage(in models.UsageInput) models.UsageStat {
	b.mu.Lock()
	defer b.mu.Unlock()

	modelsUsed := make(map[string]int, len(in.ModelsUsed))
	for k, v := range in.ModelsUsed {
		modelsUsed[k] = v
	}
	row := models.UsageStat{
		ID:                   newID(),
		Date:                 b.stamp(),
		ConversationsCreated: in.ConversationsCreated,
		MessagesExchanged:    in.MessagesExchanged,
		TokensUsed:           in.TokensUsed,
		AverageResponseTime:  in.AverageResponseTime,
		ModelsUsed:           modelsUsed,
	}
	b.usage = append(b.usage, row)
	return copyUsage(row)
}

// ListUsage returns every row in insertion order.
func (b *Bundle) ListUsage() []models.UsageStat {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.UsageStat, 0, len(b.usage))
	for _, row := range b.usage {
		out = append(out, copyUsage(row))
	}
	return out
}

func copyUsage(row models.UsageStat) models.UsageStat {
	m := make(map[string]int, len(row.ModelsUsed))
	for k, v := range row.ModelsUsed {
		m[k] = v
	}
	row.ModelsUsed = m
	return row
}
