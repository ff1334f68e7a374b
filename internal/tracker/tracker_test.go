package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorcardos0/aquiplanos-tracking/internal/adapters"
	"github.com/igorcardos0/aquiplanos-tracking/internal/autotrack"
	"github.com/igorcardos0/aquiplanos-tracking/internal/bus"
	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/dom"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/clock"
	"github.com/igorcardos0/aquiplanos-tracking/internal/queue"
)

// fakeCollector is an httptest collector that records delivered batches.
type fakeCollector struct {
	srv *httptest.Server

	mu      sync.Mutex
	batches [][]event.TrackingEvent
	fail    bool
}

func newFakeCollector(t *testing.T) *fakeCollector {
	t.Helper()
	fc := &fakeCollector{}
	fc.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fc.mu.Lock()
		failing := fc.fail
		if !failing {
			fc.batches = append(fc.batches, req.Events)
		}
		fc.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(APIResponse{Success: true, Processed: len(req.Events)})
	}))
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCollector) setFail(fail bool) {
	fc.mu.Lock()
	fc.fail = fail
	fc.mu.Unlock()
}

func (fc *fakeCollector) delivered() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, b := range fc.batches {
		n += len(b)
	}
	return n
}

func (fc *fakeCollector) batchSizes() []int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	sizes := make([]int, len(fc.batches))
	for i, b := range fc.batches {
		sizes[i] = len(b)
	}
	return sizes
}

type trackerFixture struct {
	cfg       *config.Config
	tracker   *Tracker
	queue     queue.Queue
	auto      *autotrack.AutoTrackers
	collector *fakeCollector
	clk       *clock.Fake
	calls     *[]string
}

func setupTracker(t *testing.T) *trackerFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	fc := newFakeCollector(t)

	cfg := config.Default()
	cfg.Enabled = true
	cfg.API = config.APIConfig{Endpoint: fc.srv.URL, APIKey: "test-key", TimeoutSeconds: 5}
	cfg.AutoTracking = config.AutoTrackingConfig{Clicks: true, Forms: true, Scroll: true}

	q := queue.New(context.Background(), rdb, queue.Options{KeyPrefix: "test"})

	ambient := event.NewContext()
	ambient.SetPage(event.PageInfo{URL: "https://www.aquiplanos.com.br/", Path: "/", Title: "Home"})
	norm := event.NewNormalizer(ambient, event.NewSession(event.NewMemorySessionStore()))

	b := bus.New()
	clk := clock.NewFake()
	auto := autotrack.New(cfg, norm, b, clk)
	client := NewClient(cfg.API)

	tr := New(cfg, q, adapters.NewRegistry(), auto, b, norm, client, clk)
	t.Cleanup(tr.Destroy)

	var calls []string
	rec := adapters.Call(func(command, name string, params map[string]interface{}) error {
		calls = append(calls, command+":"+name)
		return nil
	})
	cfg.Adapters.GoogleAnalytics = config.GoogleAnalyticsConfig{Enabled: true, MeasurementID: "G-TEST"}
	require.True(t, tr.Register(adapters.NewGoogleAnalytics(rec)))

	return &trackerFixture{
		cfg: cfg, tracker: tr, queue: q, auto: auto,
		collector: fc, clk: clk, calls: &calls,
	}
}

func TestTracker_InitializeIdempotent(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	f.tracker.Initialize(ctx)
	assert.NotPanics(t, func() { f.tracker.Initialize(ctx) })
}

func TestTracker_DisabledConfigStaysUninitialized(t *testing.T) {
	f := setupTracker(t)
	f.cfg.Enabled = false
	ctx := context.Background()

	f.tracker.Initialize(ctx)
	f.tracker.Track(ctx, "ignored", TrackOptions{})

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Zero(t, f.collector.delivered())
}

func TestTracker_TrackBeforeInitializeDrops(t *testing.T) {
	f := setupTracker(t)
	f.tracker.Track(context.Background(), "early", TrackOptions{})
	assert.Zero(t, f.collector.delivered())
}

func TestTracker_TrackDeliversAndDequeues(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	f.tracker.Initialize(ctx)

	f.tracker.Track(ctx, "quiz_answer", TrackOptions{Category: "quiz", Label: "q1", Value: 2})

	assert.Eventually(t, func() bool {
		size, err := f.queue.Size(ctx)
		return err == nil && size == 0 && f.collector.delivered() == 1
	}, 2*time.Second, 10*time.Millisecond, "event should be delivered and dequeued")

	// Adapter fan-out happened synchronously before delivery
	assert.Contains(t, *f.calls, "event:quiz_answer")
}

func TestTracker_TypedTrackUsesEnum(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	f.tracker.Initialize(ctx)

	f.tracker.Track(ctx, "whitepaper", TrackOptions{Type: "download"})

	assert.Eventually(t, func() bool { return f.collector.delivered() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.collector.mu.Lock()
	defer f.collector.mu.Unlock()
	require.Len(t, f.collector.batches, 1)
	assert.Equal(t, event.TypeDownload, f.collector.batches[0][0].Type)
}

func TestTracker_FailedDeliveryMarksAttempts(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	f.collector.setFail(true)
	f.tracker.Initialize(ctx)

	f.tracker.Track(ctx, "important", TrackOptions{})

	assert.Eventually(t, func() bool {
		all, err := f.queue.GetAll(ctx)
		return err == nil && len(all) == 1 && all[0].Attempts == 1
	}, 2*time.Second, 10*time.Millisecond, "failed delivery should bump attempts")
}

func TestTracker_RetryLoopDrainsQueue(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	f.collector.setFail(true)
	f.tracker.Initialize(ctx)

	f.tracker.Track(ctx, "retry_me", TrackOptions{})
	assert.Eventually(t, func() bool {
		all, _ := f.queue.GetAll(ctx)
		return len(all) == 1 && all[0].Attempts == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.collector.setFail(false)

	// Tick the retry loop until the event's backoff window has passed.
	// The 2s real-time backoff after one attempt governs eligibility.
	assert.Eventually(t, func() bool {
		f.clk.Advance(f.cfg.Queue.RetryDelay())
		size, err := f.queue.Size(ctx)
		return err == nil && size == 0
	}, 5*time.Second, 100*time.Millisecond, "retry loop should eventually deliver")

	assert.Equal(t, 1, f.collector.delivered())
}

func TestTracker_ProcessQueueBatches(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	// Pre-populate the queue out of band: only the retry path delivers these
	for i := 0; i < 25; i++ {
		ev := event.TrackingEvent{
			ID:        event.NewEventID(),
			Type:      event.TypeCustom,
			Name:      "backlog",
			Timestamp: time.Now().UnixMilli(),
		}
		require.NoError(t, f.queue.Enqueue(ctx, ev))
	}

	f.tracker.Initialize(ctx)

	assert.Eventually(t, func() bool {
		size, err := f.queue.Size(ctx)
		return err == nil && size == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []int{10, 10, 5}, f.collector.batchSizes())
}

func TestTracker_Pageview(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	f.tracker.Initialize(ctx)

	f.tracker.Pageview(ctx, PageviewOptions{Path: "/planos", Title: "Planos"})

	assert.Eventually(t, func() bool { return f.collector.delivered() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.collector.mu.Lock()
	ev := f.collector.batches[0][0]
	f.collector.mu.Unlock()
	assert.Equal(t, event.TypePageView, ev.Type)
	assert.Equal(t, "/planos", ev.Page.Path)
	assert.Equal(t, "Planos", ev.Page.Title)

	// The page-view capability fired alongside the generic fan-out
	assert.Contains(t, *f.calls, "config:G-TEST")
}

func TestTracker_AutoTrackedEventsFlowThroughBus(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	f.tracker.Initialize(ctx)

	f.auto.HandleClick(ctx, &dom.Element{Tag: "button", Text: "Contratar"})

	assert.Eventually(t, func() bool { return f.collector.delivered() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.collector.mu.Lock()
	ev := f.collector.batches[0][0]
	f.collector.mu.Unlock()
	assert.Equal(t, event.TypeClick, ev.Type)
	assert.Equal(t, "Contratar", ev.Label)
}

func TestTracker_NotConfiguredKeepsEventsQueued(t *testing.T) {
	f := setupTracker(t)
	f.cfg.API.APIKey = ""
	// rebuild the client with the degraded config
	f.tracker.client = NewClient(f.cfg.API)
	ctx := context.Background()
	f.tracker.Initialize(ctx)

	f.tracker.Track(ctx, "offline", TrackOptions{})

	assert.Eventually(t, func() bool {
		all, err := f.queue.GetAll(ctx)
		return err == nil && len(all) == 1 && all[0].Attempts == 0
	}, 2*time.Second, 10*time.Millisecond, "unconfigured delivery must not consume attempts")
}

func TestTracker_DestroyStopsPipeline(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	f.tracker.Initialize(ctx)
	f.tracker.Destroy()

	f.tracker.Track(ctx, "after_destroy", TrackOptions{})
	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	// Destroy again is a no-op
	assert.NotPanics(t, f.tracker.Destroy)
}

func TestTracker_QueueStats(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, f.queue.Enqueue(ctx, event.TrackingEvent{ID: "x", Type: event.TypeCustom, Name: "n", Timestamp: 1}))
	stats, err := f.tracker.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Size)
}
