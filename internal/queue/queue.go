// Package queue implements the durable event queue: pending events
// survive process restarts and are retried with exponential backoff until
// the collector accepts them or they exceed the retry limit.
package queue

import (
	"context"
	"time"

	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
)

// QueuedEvent wraps a canonical event with delivery bookkeeping. The
// wrapped event is immutable; only Attempts and LastAttempt change.
type QueuedEvent struct {
	ID          string              `json:"id"`
	Event       event.TrackingEvent `json:"event"`
	Attempts    int                 `json:"attempts"`
	LastAttempt int64               `json:"last_attempt"` // unix ms, 0 if never attempted
	CreatedAt   int64               `json:"created_at"`   // unix ms
}

// Queue is the durable queue contract. All mutation of pending-event
// state goes through here; no other component touches the storage.
type Queue interface {
	// Enqueue idempotently upserts a pending event keyed by event id.
	Enqueue(ctx context.Context, ev event.TrackingEvent) error
	// Dequeue removes an entry after confirmed collector acceptance.
	Dequeue(ctx context.Context, id string) error
	// IncrementAttempts atomically bumps the attempt count and stamps
	// the last-attempt time for one entry.
	IncrementAttempts(ctx context.Context, id string) error
	// GetAll returns every pending entry.
	GetAll(ctx context.Context) ([]QueuedEvent, error)
	// GetReadyForRetry returns entries under the retry limit whose
	// backoff window has elapsed.
	GetReadyForRetry(ctx context.Context, maxRetries int) ([]QueuedEvent, error)
	// Clear removes all entries.
	Clear(ctx context.Context) error
	// Size returns the number of pending entries.
	Size(ctx context.Context) (int64, error)
}

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// Backoff returns the delay required after the given number of failed
// attempts: min(1s * 2^attempts, 30s).
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := backoffBase
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

// readyForRetry applies the retry-eligibility rule shared by every
// implementation. Entries at or beyond maxRetries are permanently stuck
// and excluded; they stay in storage for inspection until age cleanup.
func readyForRetry(entries []QueuedEvent, maxRetries int, now time.Time) []QueuedEvent {
	nowMS := now.UnixMilli()
	var out []QueuedEvent
	for _, qe := range entries {
		if qe.Attempts >= maxRetries {
			continue
		}
		next := qe.LastAttempt + Backoff(qe.Attempts).Milliseconds()
		if nowMS >= next {
			out = append(out, qe)
		}
	}
	return out
}
