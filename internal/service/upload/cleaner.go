package upload

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const DefaultCleanupInterval = time.Hour

// StartCleaner removes uploads older than ttl every interval until ctx ends.
// A non-positive ttl keeps files forever and starts nothing.
func (s *Service) StartCleaner(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go s.cleanupLoop(ctx, ttl, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := s.cleanupExpired(time.Now().Add(-ttl)); err != nil {
				s.logger.Warn("cleanup uploads failed", zap.Error(err))
			} else if removed > 0 {
				s.logger.Info("expired uploads removed", zap.Int("count", removed))
			}
		}
	}
}

// cleanupExpired deletes regular files last modified before cutoff.
func (s *Service) cleanupExpired(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove upload failed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
