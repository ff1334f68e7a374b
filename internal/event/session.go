package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

// SessionStore is the session-scoped storage port backing the session id.
// The id is generated once per session and reused for every event until
// the store is cleared.
type SessionStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// NewSessionID generates a fresh session identifier.
func NewSessionID() string {
	return fmt.Sprintf("session-%d-%s", time.Now().UnixMilli(), randSuffix(9))
}

// Session resolves the current session id against a SessionStore,
// generating and persisting a new id when none exists. Store failures
// degrade to a process-local id rather than blocking tracking.
type Session struct {
	store SessionStore

	mu     sync.Mutex
	cached string
}

// NewSession creates a session bound to the given store.
func NewSession(store SessionStore) *Session {
	return &Session{store: store}
}

// ID returns the current session id, creating one if needed.
func (s *Session) ID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached
	}

	id, err := s.store.Get(ctx)
	if err != nil {
		logger.Warn("session: store read failed, using ephemeral id", "error", err)
	}
	if id == "" {
		id = NewSessionID()
		if err := s.store.Set(ctx, id); err != nil {
			logger.Warn("session: store write failed", "error", err)
		}
	}
	s.cached = id
	return id
}

// Reset drops the cached id and clears the store, forcing a new session.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = ""
	if err := s.store.Clear(ctx); err != nil {
		logger.Warn("session: store clear failed", "error", err)
	}
}

// RedisSessionStore persists the session id as a single Redis string with
// a session-scoped TTL, refreshed on every write.
type RedisSessionStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store under the
// given key prefix. A zero ttl defaults to 30 minutes.
func NewRedisSessionStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSessionStore{
		client: client,
		key:    keyPrefix + ":session_id",
		ttl:    ttl,
	}
}

func (r *RedisSessionStore) Get(ctx context.Context) (string, error) {
	id, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session get: %w", err)
	}
	// Sliding expiration: activity keeps the session alive
	r.client.Expire(ctx, r.key, r.ttl)
	return id, nil
}

func (r *RedisSessionStore) Set(ctx context.Context, id string) error {
	if err := r.client.Set(ctx, r.key, id, r.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

// MemorySessionStore keeps the session id in process memory. Used when no
// persistent store is available.
type MemorySessionStore struct {
	mu sync.Mutex
	id string
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore { return &MemorySessionStore{} }

func (m *MemorySessionStore) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemorySessionStore) Set(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

func (m *MemorySessionStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	return nil
}
