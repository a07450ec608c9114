package ai

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// MaxCompareModels caps how many models one comparison may fan out to.
const MaxCompareModels = 8

// CompareFailedMessage is reported for a model that could not answer. Provider
// details stay in the logs.
const CompareFailedMessage = "failed to generate response"

// CompareResult is one model's answer to a comparison prompt.
type CompareResult struct {
	Model        string `json:"model"`
	Response     string `json:"response"`
	ResponseTime int64  `json:"responseTime"`
	Tokens       int    `json:"tokens"`
	Error        string `json:"error,omitempty"`
	Cached       bool   `json:"cached"`
}

// Compare asks every model the same message concurrently. Results keep the
// order of models; a failing model carries Error instead of failing the batch.
// Nothing is stored in any session.
func (s *Service) Compare(ctx context.Context, message string, models []string) []CompareResult {
	results := make([]CompareResult, len(models))
	sem := make(chan struct{}, MaxCompareModels)
	var wg sync.WaitGroup
	for i, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			m = s.defaultModel
		}
		wg.Add(1)
		go func(i int, modelName string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.compareOne(ctx, message, modelName)
		}(i, m)
	}
	wg.Wait()
	return results
}

func (s *Service) compareOne(ctx context.Context, message, modelName string) CompareResult {
	if cached, ok := s.cache.get(ctx, modelName, message); ok {
		return cached
	}
	gen, err := s.Generate(ctx, message, modelName)
	if err != nil {
		s.logger.Warn("compare generation failed", zap.String("model", modelName), zap.Error(err))
		return CompareResult{Model: modelName, Error: CompareFailedMessage}
	}
	res := CompareResult{
		Model:        modelName,
		Response:     gen.Text,
		ResponseTime: gen.ResponseTimeMs,
		Tokens:       gen.TokensUsed,
	}
	s.cache.put(ctx, message, res)
	return res
}
