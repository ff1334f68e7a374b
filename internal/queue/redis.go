package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

// Redis layout under the configured prefix:
//
//	<prefix>:queue:payload   hash  id → canonical event JSON (immutable)
//	<prefix>:queue:attempts  hash  id → failed delivery count
//	<prefix>:queue:last      hash  id → last attempt unix ms
//	<prefix>:queue:created   zset  id scored by enqueue unix ms
//
// Attempts and last-attempt live outside the payload so the increment is
// a single atomic Lua script and the event payload never gets rewritten.

// incrScript bumps the attempt counter and stamps the attempt time for an
// entry, as one atomic unit. A missing entry is a no-op (the entry may
// have been dequeued by a concurrent successful delivery).
var incrScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	return 0
end
local n = redis.call("HINCRBY", KEYS[2], ARGV[1], 1)
redis.call("HSET", KEYS[3], ARGV[1], ARGV[2])
return n
`)

// RedisQueue is the Redis-backed durable queue.
type RedisQueue struct {
	client *redis.Client

	payloadKey  string
	attemptsKey string
	lastKey     string
	createdKey  string

	maxAge time.Duration
}

// Options tunes queue construction.
type Options struct {
	// KeyPrefix namespaces all queue keys (default "tracking").
	KeyPrefix string
	// MaxAge is the retention limit for entries regardless of delivery
	// status (default 7 days).
	MaxAge time.Duration
}

// New connects the durable queue to Redis. If the store is unreachable
// the queue degrades to a no-op so tracking never blocks the host; the
// degradation is logged once here.
func New(ctx context.Context, client *redis.Client, opts Options) Queue {
	if client == nil {
		logger.Warn("queue: no redis client, event queue disabled")
		return NewNoop()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("queue: redis unreachable, event queue disabled", "error", err)
		return NewNoop()
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "tracking"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}

	q := &RedisQueue{
		client:      client,
		payloadKey:  opts.KeyPrefix + ":queue:payload",
		attemptsKey: opts.KeyPrefix + ":queue:attempts",
		lastKey:     opts.KeyPrefix + ":queue:last",
		createdKey:  opts.KeyPrefix + ":queue:created",
		maxAge:      opts.MaxAge,
	}

	if n, err := q.compact(ctx); err != nil {
		logger.Warn("queue: age compaction failed", "error", err)
	} else if n > 0 {
		logger.Info("queue: removed expired entries", "count", n)
	}

	return q
}

// Enqueue upserts the event with fresh bookkeeping. Re-enqueueing an id
// resets its attempt count, matching put semantics.
func (q *RedisQueue) Enqueue(ctx context.Context, ev event.TrackingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue enqueue: marshal event: %w", err)
	}

	now := time.Now().UnixMilli()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.payloadKey, ev.ID, payload)
	pipe.HSet(ctx, q.attemptsKey, ev.ID, 0)
	pipe.HSet(ctx, q.lastKey, ev.ID, 0)
	pipe.ZAdd(ctx, q.createdKey, redis.Z{Score: float64(now), Member: ev.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.payloadKey, id)
	pipe.HDel(ctx, q.attemptsKey, id)
	pipe.HDel(ctx, q.lastKey, id)
	pipe.ZRem(ctx, q.createdKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue dequeue: %w", err)
	}
	return nil
}

func (q *RedisQueue) IncrementAttempts(ctx context.Context, id string) error {
	now := time.Now().UnixMilli()
	keys := []string{q.payloadKey, q.attemptsKey, q.lastKey}
	if err := incrScript.Run(ctx, q.client, keys, id, now).Err(); err != nil {
		return fmt.Errorf("queue increment attempts: %w", err)
	}
	return nil
}

func (q *RedisQueue) GetAll(ctx context.Context) ([]QueuedEvent, error) {
	pipe := q.client.TxPipeline()
	payloadCmd := pipe.HGetAll(ctx, q.payloadKey)
	attemptsCmd := pipe.HGetAll(ctx, q.attemptsKey)
	lastCmd := pipe.HGetAll(ctx, q.lastKey)
	createdCmd := pipe.ZRangeWithScores(ctx, q.createdKey, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue get all: %w", err)
	}

	attempts := attemptsCmd.Val()
	last := lastCmd.Val()
	created := map[string]int64{}
	for _, z := range createdCmd.Val() {
		if id, ok := z.Member.(string); ok {
			created[id] = int64(z.Score)
		}
	}

	var out []QueuedEvent
	for id, raw := range payloadCmd.Val() {
		var ev event.TrackingEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			logger.Warn("queue: dropping undecodable entry", "id", id, "error", err)
			continue
		}
		qe := QueuedEvent{ID: id, Event: ev, CreatedAt: created[id]}
		if v, err := strconv.Atoi(attempts[id]); err == nil {
			qe.Attempts = v
		}
		if v, err := strconv.ParseInt(last[id], 10, 64); err == nil {
			qe.LastAttempt = v
		}
		out = append(out, qe)
	}
	return out, nil
}

func (q *RedisQueue) GetReadyForRetry(ctx context.Context, maxRetries int) ([]QueuedEvent, error) {
	all, err := q.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return readyForRetry(all, maxRetries, time.Now()), nil
}

func (q *RedisQueue) Clear(ctx context.Context) error {
	if err := q.client.Del(ctx, q.payloadKey, q.attemptsKey, q.lastKey, q.createdKey).Err(); err != nil {
		return fmt.Errorf("queue clear: %w", err)
	}
	return nil
}

func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	n, err := q.client.HLen(ctx, q.payloadKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}

// compact removes entries older than maxAge regardless of delivery
// status, bounding storage growth. Runs once at construction.
func (q *RedisQueue) compact(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-q.maxAge).UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.createdKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.payloadKey, ids...)
	pipe.HDel(ctx, q.attemptsKey, ids...)
	pipe.HDel(ctx, q.lastKey, ids...)
	for _, id := range ids {
		pipe.ZRem(ctx, q.createdKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}
