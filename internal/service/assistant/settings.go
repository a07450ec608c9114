package assistant

import (
	"context"
	"fmt"

	"geminichat/internal/models"
)

func (s *Service) GetSettings(ctx context.Context, sessionID string) (*models.UserSettings, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	settings := b.GetSettings()
	return &settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, sessionID string, patch models.SettingsPatch) (*models.UserSettings, error) {
	b, err := s.bundle(sessionID)
	if err != nil {
		return nil, err
	}
	if err := models.Validate(patch); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidRequest)
	}
	settings := b.UpdateSettings(patch)
	return &settings, nil
}
