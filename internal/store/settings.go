package store

import (
	"time"

	"geminichat/internal/models"
)

func defaultSettings(now time.Time) models.UserSettings {
	return models.UserSettings{
		ID:             newID(),
		Theme:          "dark-gray",
		FontSize:       "medium",
		TypingSpeed:    "normal",
		AutoSave:       true,
		ShowTimestamps: true,
		SoundEnabled:   false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (b *Bundle) GetSettings() models.UserSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// UpdateSettings merges the non-nil fields of patch.
func (b *Bundle) UpdateSettings(patch models.SettingsPatch) models.UserSettings {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &b.settings
	if patch.Theme != nil {
		s.Theme = *patch.Theme
	}
	if patch.FontSize != nil {
		s.FontSize = *patch.FontSize
	}
	if patch.TypingSpeed != nil {
		s.TypingSpeed = *patch.TypingSpeed
	}
	if patch.AutoSave != nil {
		s.AutoSave = *patch.AutoSave
	}
	if patch.ShowTimestamps != nil {
		s.ShowTimestamps = *patch.ShowTimestamps
	}
	if patch.SoundEnabled != nil {
		s.SoundEnabled = *patch.SoundEnabled
	}
	s.UpdatedAt = b.stamp()
	return *s
}
