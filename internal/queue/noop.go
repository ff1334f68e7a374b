package queue

import (
	"context"

	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
)

// Noop is the degraded queue used when no persistent store is available.
// Every operation succeeds without doing anything, so tracking keeps
// working in best-effort send-once mode.
type Noop struct{}

// NewNoop returns the degraded no-op queue.
func NewNoop() Noop { return Noop{} }

func (Noop) Enqueue(ctx context.Context, ev event.TrackingEvent) error { return nil }
func (Noop) Dequeue(ctx context.Context, id string) error              { return nil }
func (Noop) IncrementAttempts(ctx context.Context, id string) error    { return nil }
func (Noop) GetAll(ctx context.Context) ([]QueuedEvent, error)         { return nil, nil }
func (Noop) GetReadyForRetry(ctx context.Context, maxRetries int) ([]QueuedEvent, error) {
	return nil, nil
}
func (Noop) Clear(ctx context.Context) error        { return nil }
func (Noop) Size(ctx context.Context) (int64, error) { return 0, nil }
