package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"geminichat/internal/config"
)

// FallbackReply is returned when the provider answers with empty text.
const FallbackReply = "I apologize, but I couldn't generate a response at this time."

const systemInstruction = "You are a helpful assistant that acts as humanly as possible. " +
	"You always listen to the user and never ignore their request. " +
	"Respond in a friendly, conversational way, as if you're a caring and attentive human. " +
	"You can answer questions, give detailed explanations and examples, write creative content, " +
	"help with problem solving and keep a coherent conversation across topics. " +
	"For medical issues always recommend consulting a professional."

var (
	ErrNoAPIKey     = errors.New("ai: no api key configured")
	ErrUnknownModel = errors.New("ai: empty model")
)

// ChatModelFactory builds a chat model for one (provider, model, key) triple.
type ChatModelFactory func(ctx context.Context, provider, modelName, apiKey string, cfg config.ProviderConfig) (model.BaseChatModel, error)

// Generation is one completed answer.
type Generation struct {
	Text           string
	TokensUsed     int
	ResponseTimeMs int64
}

type Service struct {
	providers    map[string]config.ProviderConfig
	defaultModel string
	factory      ChatModelFactory
	cache        *CompareCache
	logger       *zap.Logger
	now          func() time.Time

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

type Option func(*Service)

// WithFactory swaps the provider constructors, used by tests.
func WithFactory(f ChatModelFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.factory = f
		}
	}
}

func WithCompareCache(c *CompareCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		providers:    make(map[string]config.ProviderConfig),
		defaultModel: config.DefaultModel,
		factory:      newChatModel,
		logger:       zap.NewNop(),
		now:          time.Now,
		models:       make(map[string]model.BaseChatModel),
	}
	if cfg != nil {
		for name, p := range cfg.Providers {
			s.providers[name] = p
		}
		if cfg.BasicConfig.DefaultModel != "" {
			s.defaultModel = cfg.BasicConfig.DefaultModel
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProviderFor routes a model id to the provider serving it.
func ProviderFor(modelName string) string {
	m := strings.ToLower(strings.TrimSpace(modelName))
	switch {
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return config.ProviderOpenAI
	case strings.HasPrefix(m, "claude-"):
		return config.ProviderClaude
	default:
		return config.ProviderGemini
	}
}

// Chat sends messages to modelName. A failure with the primary key is retried
// once with the provider's backup key.
func (s *Service) Chat(ctx context.Context, modelName string, messages []*schema.Message) (*schema.Message, error) {
	if strings.TrimSpace(modelName) == "" {
		modelName = s.defaultModel
	}
	if modelName == "" {
		return nil, ErrUnknownModel
	}
	provider := ProviderFor(modelName)
	keys := s.keysFor(provider)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w for provider %s", ErrNoAPIKey, provider)
	}

	var lastErr error
	for i, key := range keys {
		chatModel, err := s.chatModel(ctx, provider, modelName, key)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := chatModel.Generate(ctx, messages)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(keys) {
			s.logger.Warn("primary key failed, retrying with backup key",
				zap.String("provider", provider), zap.String("model", modelName), zap.Error(err))
		}
	}
	return nil, fmt.Errorf("generate with %s/%s: %w", provider, modelName, lastErr)
}

// Generate answers a single prompt, preceded by the system instruction.
func (s *Service) Generate(ctx context.Context, prompt, modelName string) (*Generation, error) {
	start := s.now()
	resp, err := s.Chat(ctx, modelName, []*schema.Message{
		schema.SystemMessage(systemInstruction),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return nil, err
	}
	elapsed := s.now().Sub(start).Milliseconds()

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		text = FallbackReply
	}
	return &Generation{
		Text:           text,
		TokensUsed:     tokensOf(resp, text),
		ResponseTimeMs: elapsed,
	}, nil
}

func tokensOf(resp *schema.Message, text string) int {
	if resp != nil && resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil && resp.ResponseMeta.Usage.TotalTokens > 0 {
		return resp.ResponseMeta.Usage.TotalTokens
	}
	return EstimateTokens(text)
}

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

func (s *Service) keysFor(provider string) []string {
	p := s.providers[provider]
	var keys []string
	if k := strings.TrimSpace(p.APIKey); k != "" {
		keys = append(keys, k)
	}
	if k := strings.TrimSpace(p.BackupAPIKey); k != "" && (len(keys) == 0 || keys[0] != k) {
		keys = append(keys, k)
	}
	return keys
}

func (s *Service) chatModel(ctx context.Context, provider, modelName, key string) (model.BaseChatModel, error) {
	cacheKey := provider + "|" + modelName + "|" + key
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.models[cacheKey]; ok {
		return m, nil
	}
	m, err := s.factory(ctx, provider, modelName, key, s.providers[provider])
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	s.models[cacheKey] = m
	return m, nil
}

func newChatModel(ctx context.Context, provider, modelName, apiKey string, cfg config.ProviderConfig) (model.BaseChatModel, error) {
	switch provider {
	case config.ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
	case config.ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case config.ProviderClaude:
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURL,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}
