package ai

import "geminichat/internal/config"

// ModelInfo describes a selectable model.
type ModelInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Speed        string   `json:"speed"`
	Capabilities []string `json:"capabilities"`
	Provider     string   `json:"provider"`
}

var catalog = []ModelInfo{
	{
		ID:           "gemini-1.5-flash",
		Name:         "Gemini 1.5 Flash",
		Description:  "Fast responses, great for general tasks",
		Speed:        "Fast",
		Capabilities: []string{"Text", "Code", "Math"},
		Provider:     config.ProviderGemini,
	},
	{
		ID:           "gemini-2.0-flash-exp",
		Name:         "Gemini 2.0 Flash",
		Description:  "Latest model with enhanced capabilities",
		Speed:        "Fast",
		Capabilities: []string{"Text", "Code", "Math", "Reasoning"},
		Provider:     config.ProviderGemini,
	},
	{
		ID:           "gemini-2.5-flash",
		Name:         "Gemini 2.5 Flash",
		Description:  "Advanced model with thinking capabilities",
		Speed:        "Fast",
		Capabilities: []string{"Text", "Code", "Math", "Reasoning", "Thinking"},
		Provider:     config.ProviderGemini,
	},
}

// Catalog lists the known models. Callers get their own copy.
func Catalog() []ModelInfo {
	out := make([]ModelInfo, len(catalog))
	for i, m := range catalog {
		m.Capabilities = append([]string(nil), m.Capabilities...)
		out[i] = m
	}
	return out
}

// KnownModel reports whether id is in the catalog.
func KnownModel(id string) bool {
	for _, m := range catalog {
		if m.ID == id {
			return true
		}
	}
	return false
}
