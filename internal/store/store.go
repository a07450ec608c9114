package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"geminichat/internal/models"
)

// Store maps session identifiers to isolated data bundles. Bundles are created
// on first access and live until evicted by the configured limits.
type Store struct {
	mu          sync.Mutex
	bundles     *cache.Cache
	idleTTL     time.Duration
	maxSessions int
	now         func() time.Time
	logger      *zap.Logger
	onEvict     func(sessionID string)
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxSessions caps live bundles; the least recently used one is evicted
// to make room. Zero means unbounded.
func WithMaxSessions(n int) Option {
	return func(s *Store) { s.maxSessions = n }
}

// WithIdleTTL expires bundles that were not touched for d. Zero disables it.
func WithIdleTTL(d time.Duration) Option {
	return func(s *Store) { s.idleTTL = d }
}

// WithEvictionHook is called with the session id of every bundle dropped by
// the size cap or idle expiry.
func WithEvictionHook(fn func(sessionID string)) Option {
	return func(s *Store) { s.onEvict = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if s.idleTTL > 0 {
		expiration = s.idleTTL
		cleanup = s.idleTTL / 2
		if cleanup < time.Second {
			cleanup = time.Second
		}
	}
	s.bundles = cache.New(expiration, cleanup)
	s.bundles.OnEvicted(func(sessionID string, _ interface{}) {
		s.logger.Debug("session bundle evicted", zap.String("session_id", sessionID))
		if s.onEvict != nil {
			s.onEvict(sessionID)
		}
	})
	return s
}

// GetOrCreate returns the bundle for sessionID, provisioning it with default
// settings on first use. Callers reject empty identifiers before reaching here.
func (s *Store) GetOrCreate(sessionID string) *Bundle {
	if b := s.lookup(sessionID); b != nil {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.lookup(sessionID); b != nil {
		return b
	}
	if s.maxSessions > 0 && s.bundles.ItemCount() >= s.maxSessions {
		s.evictOldestLocked()
	}
	b := newBundle(sessionID, s.now)
	b.touch(s.now())
	s.bundles.Set(sessionID, b, cache.DefaultExpiration)
	s.logger.Debug("session bundle created", zap.String("session_id", sessionID))
	return b
}

// Len reports the number of live bundles.
func (s *Store) Len() int {
	return s.bundles.ItemCount()
}

func (s *Store) lookup(sessionID string) *Bundle {
	raw, ok := s.bundles.Get(sessionID)
	if !ok {
		return nil
	}
	b := raw.(*Bundle)
	b.touch(s.now())
	if s.idleTTL > 0 {
		// sliding expiration
		s.bundles.Set(sessionID, b, cache.DefaultExpiration)
	}
	return b
}

func (s *Store) evictOldestLocked() {
	var (
		oldestID string
		oldest   int64
	)
	for id, item := range s.bundles.Items() {
		b := item.Object.(*Bundle)
		seen := b.lastSeen.Load()
		if oldestID == "" || seen < oldest {
			oldestID, oldest = id, seen
		}
	}
	if oldestID != "" {
		s.bundles.Delete(oldestID)
	}
}

// Bundle holds one session's conversations, messages, settings and usage rows.
// Every exported method is atomic with respect to the others.
type Bundle struct {
	sessionID string
	now       func() time.Time
	lastSeen  atomic.Int64

	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	convOrder     []string
	messages      map[string]*models.Message
	threads       map[string][]string // conversation id -> message ids in insertion order
	settings      models.UserSettings
	usage         []models.UsageStat
	lastStamp     time.Time
}

func newBundle(sessionID string, now func() time.Time) *Bundle {
	created := now().UTC()
	return &Bundle{
		sessionID:     sessionID,
		now:           now,
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
		threads:       make(map[string][]string),
		settings:      defaultSettings(created),
		lastStamp:     created,
	}
}

// SessionID returns the partition key this bundle belongs to.
func (b *Bundle) SessionID() string {
	return b.sessionID
}

func (b *Bundle) touch(t time.Time) {
	b.lastSeen.Store(t.UnixNano())
}

// stamp returns a wall-clock time that never goes backwards within the bundle.
// Caller holds b.mu for writing.
func (b *Bundle) stamp() time.Time {
	t := b.now().UTC()
	if t.Before(b.lastStamp) {
		t = b.lastStamp
	}
	b.lastStamp = t
	return t
}

func newID() string {
	return uuid.NewString()
}
