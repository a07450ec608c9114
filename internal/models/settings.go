package models

import "time"

type UserSettings struct {
	ID             string    `json:"id"`
	Theme          string    `json:"theme"`
	FontSize       string    `json:"fontSize"`
	TypingSpeed    string    `json:"typingSpeed"`
	AutoSave       bool      `json:"autoSave"`
	ShowTimestamps bool      `json:"showTimestamps"`
	SoundEnabled   bool      `json:"soundEnabled"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type SettingsPatch struct {
	Theme          *string `json:"theme,omitempty" binding:"omitempty,oneof=dark-gray blue purple green rose blue-dark green-dark purple-dark"`
	FontSize       *string `json:"fontSize,omitempty" binding:"omitempty,oneof=small medium large"`
	TypingSpeed    *string `json:"typingSpeed,omitempty" binding:"omitempty,oneof=slow normal fast"`
	AutoSave       *bool   `json:"autoSave,omitempty"`
	ShowTimestamps *bool   `json:"showTimestamps,omitempty"`
	SoundEnabled   *bool   `json:"soundEnabled,omitempty"`
}
