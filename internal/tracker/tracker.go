// Package tracker is the pipeline orchestrator: it wires the passive
// trackers, the vendor adapters, and the durable queue together and
// drives delivery to the collection endpoint.
package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/igorcardos0/aquiplanos-tracking/internal/adapters"
	"github.com/igorcardos0/aquiplanos-tracking/internal/autotrack"
	"github.com/igorcardos0/aquiplanos-tracking/internal/bus"
	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/clock"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/metrics"
	"github.com/igorcardos0/aquiplanos-tracking/internal/queue"
)

type state int

const (
	stateUninitialized state = iota
	stateInitializing
	stateActive
)

// Tracker coordinates the whole pipeline. Lifecycle is uninitialized →
// initializing → active; Destroy is the only way back.
type Tracker struct {
	cfg      *config.Config
	queue    queue.Queue
	registry *adapters.Registry
	auto     *autotrack.AutoTrackers
	bus      *bus.Bus
	norm     *event.Normalizer
	client   *Client
	clk      clock.Clock

	mu     sync.Mutex
	st     state
	unsub  func()
	stop   chan struct{}
	loopWG sync.WaitGroup
	sendWG sync.WaitGroup
}

// TrackOptions carries the optional fields of a manual track call.
type TrackOptions struct {
	Type       string
	Category   string
	Label      string
	Value      float64
	Properties map[string]interface{}
	Metadata   event.Metadata
}

// PageviewOptions optionally overrides the page snapshot of a page view.
type PageviewOptions struct {
	Path  string
	Title string
}

// Stats is the read-only queue introspection result.
type Stats struct {
	Size int64 `json:"size"`
}

// New wires a tracker from its collaborators. Nothing runs until
// Initialize.
func New(
	cfg *config.Config,
	q queue.Queue,
	reg *adapters.Registry,
	auto *autotrack.AutoTrackers,
	b *bus.Bus,
	norm *event.Normalizer,
	client *Client,
	clk clock.Clock,
) *Tracker {
	return &Tracker{
		cfg:      cfg,
		queue:    q,
		registry: reg,
		auto:     auto,
		bus:      b,
		norm:     norm,
		client:   client,
		clk:      clk,
	}
}

// Register admits an adapter into the active set if its vendor is
// available. Registration order fixes fan-out order.
func (t *Tracker) Register(a adapters.Adapter) bool {
	return t.registry.Register(a, t.cfg.Adapters)
}

// Initialize starts the pipeline: bus subscription, passive trackers,
// one pass over the pending queue, and the periodic retry loop. Repeat
// calls are no-ops with a warning. When tracking is disabled by
// configuration nothing starts at all.
func (t *Tracker) Initialize(ctx context.Context) {
	t.mu.Lock()
	if t.st != stateUninitialized {
		t.mu.Unlock()
		logger.Warn("tracker: already initialized")
		return
	}
	if !t.cfg.Enabled {
		t.mu.Unlock()
		logger.Debug("tracker: tracking disabled by configuration")
		return
	}
	t.st = stateInitializing

	t.unsub = t.bus.Subscribe(func(ev event.TrackingEvent) {
		t.trackEvent(context.Background(), ev)
	})
	t.auto.Start(ctx)

	t.stop = make(chan struct{})
	t.loopWG.Add(1)
	go t.retryLoop()

	t.st = stateActive
	t.mu.Unlock()

	// Drain whatever survived the previous run
	go t.processQueue(context.Background())

	logger.Info("tracker: initialized", "adapters", t.registry.Len())
}

// Track records a manually instrumented event.
func (t *Tracker) Track(ctx context.Context, name string, opts TrackOptions) {
	if !t.active() {
		logger.Warn("tracker: not initialized, dropping event", "event", name)
		return
	}

	typ := event.TypeCustom
	if opts.Type != "" {
		typ = event.ParseType(opts.Type)
	}
	ev := t.norm.Event(ctx, typ, name, event.Options{
		Category:   opts.Category,
		Label:      opts.Label,
		Value:      opts.Value,
		Properties: opts.Properties,
		Metadata:   opts.Metadata,
	})
	t.trackEvent(ctx, ev)
}

// Pageview records a page view and notifies adapters implementing the
// page-view capability.
func (t *Tracker) Pageview(ctx context.Context, opts PageviewOptions) {
	if !t.active() {
		return
	}

	ev := t.norm.PageView(ctx, event.PageInfo{Path: opts.Path, Title: opts.Title}, event.Options{})
	t.trackEvent(ctx, ev)
	t.registry.Pageview(ev.Page)
}

// trackEvent is the single funnel every event passes through: ordered
// synchronous adapter fan-out, durable enqueue, then an immediate
// delivery attempt in the background.
func (t *Tracker) trackEvent(ctx context.Context, ev event.TrackingEvent) {
	metrics.EventsTracked.WithLabelValues(string(ev.Type)).Inc()

	t.registry.Dispatch(ev)

	if err := t.queue.Enqueue(ctx, ev); err != nil {
		logger.Warn("tracker: enqueue failed, event is send-once only", "id", ev.ID, "error", err)
	}

	t.sendWG.Add(1)
	go func() {
		defer t.sendWG.Done()
		t.deliver(context.Background(), []event.TrackingEvent{ev})
	}()
}

// deliver sends one batch. Failure marks every event in the batch for
// retry; success dequeues every event the collector processed.
func (t *Tracker) deliver(ctx context.Context, events []event.TrackingEvent) {
	if len(events) == 0 {
		return
	}

	resp, err := t.client.Send(ctx, events)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			logger.Debug("tracker: collector not configured, keeping events queued")
			return
		}
		metrics.DeliveryFailures.Inc()
		logger.Debug("tracker: batch delivery failed", "count", len(events), "error", err)
		for _, ev := range events {
			if ierr := t.queue.IncrementAttempts(ctx, ev.ID); ierr != nil {
				logger.Warn("tracker: attempt bookkeeping failed", "id", ev.ID, "error", ierr)
			}
		}
		return
	}

	for _, ev := range events {
		if derr := t.queue.Dequeue(ctx, ev.ID); derr != nil {
			logger.Warn("tracker: dequeue failed", "id", ev.ID, "error", derr)
		}
	}
	metrics.EventsDelivered.Add(float64(resp.Processed))
	logger.Debug("tracker: batch delivered", "processed", resp.Processed, "failed", resp.Failed)
}

// processQueue sends every retry-eligible event in configured batch
// sizes. This is the only recovery path after transient failures.
func (t *Tracker) processQueue(ctx context.Context) {
	ready, err := t.queue.GetReadyForRetry(ctx, t.cfg.Queue.MaxRetries)
	if err != nil {
		logger.Warn("tracker: reading retry queue failed", "error", err)
		return
	}
	if size, err := t.queue.Size(ctx); err == nil {
		metrics.QueueDepth.Set(float64(size))
	}
	if len(ready) == 0 {
		return
	}

	batchSize := t.cfg.Queue.BatchSize
	for start := 0; start < len(ready); start += batchSize {
		end := start + batchSize
		if end > len(ready) {
			end = len(ready)
		}
		batch := make([]event.TrackingEvent, 0, end-start)
		for _, qe := range ready[start:end] {
			batch = append(batch, qe.Event)
		}
		t.deliver(ctx, batch)
	}
}

// retryLoop drives processQueue on the configured cadence. Backoff per
// event is computed in the queue; this loop is only the floor frequency.
func (t *Tracker) retryLoop() {
	defer t.loopWG.Done()

	ticker := t.clk.NewTicker(t.cfg.Queue.RetryDelay())
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C():
			t.processQueue(context.Background())
		}
	}
}

// Reset rearms the passive trackers for a new logical page without
// tearing the pipeline down.
func (t *Tracker) Reset(ctx context.Context) {
	if !t.active() {
		return
	}
	t.auto.Reset(ctx)
}

// Destroy stops the retry loop and all passive trackers, detaches the
// bus subscription, and waits for in-flight immediate sends. The tracker
// returns to the uninitialized state.
func (t *Tracker) Destroy() {
	t.mu.Lock()
	if t.st == stateUninitialized {
		t.mu.Unlock()
		return
	}
	close(t.stop)
	if t.unsub != nil {
		t.unsub()
		t.unsub = nil
	}
	t.auto.Destroy()
	t.st = stateUninitialized
	t.mu.Unlock()

	t.loopWG.Wait()
	t.sendWG.Wait()
	logger.Info("tracker: destroyed")
}

// QueueStats reports the pending queue size.
func (t *Tracker) QueueStats(ctx context.Context) (Stats, error) {
	size, err := t.queue.Size(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Size: size}, nil
}

func (t *Tracker) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st == stateActive
}
