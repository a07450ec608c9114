package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"geminichat/internal/redis"
)

type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CompareCache keeps comparison answers in redis. A nil cache is a no-op and
// redis failures count as misses.
type CompareCache struct {
	kv     kvStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewCompareCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *CompareCache {
	if client == nil {
		return nil
	}
	return newCompareCache(client, ttl, logger)
}

func newCompareCache(kv kvStore, ttl time.Duration, logger *zap.Logger) *CompareCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompareCache{kv: kv, ttl: ttl, logger: logger}
}

func compareKey(modelName, message string) string {
	sum := sha256.Sum256([]byte(message))
	return "compare:" + modelName + ":" + hex.EncodeToString(sum[:])
}

func (c *CompareCache) get(ctx context.Context, modelName, message string) (CompareResult, bool) {
	if c == nil {
		return CompareResult{}, false
	}
	raw, err := c.kv.Get(ctx, compareKey(modelName, message))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.logger.Warn("compare cache read failed", zap.String("model", modelName), zap.Error(err))
		}
		return CompareResult{}, false
	}
	var res CompareResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("compare cache entry corrupt", zap.String("model", modelName), zap.Error(err))
		return CompareResult{}, false
	}
	res.Cached = true
	return res, true
}

func (c *CompareCache) put(ctx context.Context, message string, res CompareResult) {
	if c == nil || res.Error != "" {
		return
	}
	res.Cached = false
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, compareKey(res.Model, message), raw, c.ttl); err != nil {
		c.logger.Warn("compare cache write failed", zap.String("model", res.Model), zap.Error(err))
	}
}
