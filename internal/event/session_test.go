package event

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_MemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewSession(NewMemorySessionStore())

	id := s.ID(ctx)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, s.ID(ctx), "id should be stable across calls")

	s.Reset(ctx)
	next := s.ID(ctx)
	assert.NotEmpty(t, next)
	assert.NotEqual(t, id, next, "reset should mint a new id")
}

func TestSession_RedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	store := NewRedisSessionStore(client, "tracking", 30*time.Minute)

	s := NewSession(store)
	id := s.ID(ctx)
	assert.NotEmpty(t, id)

	// A second session over the same store resumes the same id
	s2 := NewSession(store)
	assert.Equal(t, id, s2.ID(ctx))

	stored, err := client.Get(ctx, "tracking:session_id").Result()
	require.NoError(t, err)
	assert.Equal(t, id, stored)

	ttl := mr.TTL("tracking:session_id")
	assert.Greater(t, ttl, time.Duration(0), "session key should expire")
}

func TestSession_RedisStoreExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	store := NewRedisSessionStore(client, "tracking", time.Minute)

	s := NewSession(store)
	id := s.ID(ctx)

	// After the inactivity window the id is gone and a new session starts
	mr.FastForward(2 * time.Minute)
	fresh := NewSession(store)
	assert.NotEqual(t, id, fresh.ID(ctx))
}

func TestSession_StoreFailureDegrades(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close() // store unreachable from the start

	s := NewSession(NewRedisSessionStore(client, "tracking", 0))
	id := s.ID(context.Background())
	assert.NotEmpty(t, id, "tracking must continue with an ephemeral id")
}
