package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"geminichat/internal/service/ai"
	"geminichat/internal/store"
	"geminichat/internal/worker"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotFound           = errors.New("not found")
	ErrUpstreamGeneration = errors.New("ai generation failed")
)

const defaultGenerationTimeout = 2 * time.Minute

// Generator produces the assistant reply for one prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, model string) (*ai.Generation, error)
}

// TitleGenerator names a conversation from its first user message.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, firstMessage, model string) (string, error)
}

// Executor runs a task on the session's serial queue.
type Executor interface {
	Do(ctx context.Context, sessionID string, task worker.Task) (interface{}, error)
}

// Service implements the conversation operations on top of the session store.
type Service struct {
	store     *store.Store
	generator Generator
	titler    TitleGenerator
	exec      Executor
	logger    *zap.Logger
	timeout   time.Duration
}

type Option func(*Service)

func WithTitleGenerator(t TitleGenerator) Option {
	return func(s *Service) { s.titler = t }
}

func WithExecutor(e Executor) Option {
	return func(s *Service) { s.exec = e }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGenerationTimeout bounds one send-message job, title and reply included.
func WithGenerationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService builds the assistant. When gen can also chat it doubles as the
// title generator unless one is supplied.
func NewService(st *store.Store, gen Generator, opts ...Option) *Service {
	s := &Service{
		store:     st,
		generator: gen,
		logger:    zap.NewNop(),
		timeout:   defaultGenerationTimeout,
	}
	if chatter, ok := gen.(Chatter); ok {
		s.titler = NewTitleGenerator(chatter)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) bundle(sessionID string) (*store.Bundle, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("missing sessionId: %w", ErrInvalidRequest)
	}
	return s.store.GetOrCreate(sessionID), nil
}

// run executes task through the executor, or inline when none is set.
func (s *Service) run(ctx context.Context, sessionID string, task worker.Task) (interface{}, error) {
	if s.exec == nil {
		return task(ctx)
	}
	return s.exec.Do(ctx, sessionID, task)
}
