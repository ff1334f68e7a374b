// Package autotrack synthesizes canonical events from raw interaction
// signals without manual instrumentation. The host feeds signals in; the
// trackers decide what becomes an event and publish it on the local bus.
package autotrack

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/igorcardos0/aquiplanos-tracking/internal/bus"
	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/dom"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/clock"
)

// AutoTrackers owns the passive click, form, scroll, time-on-page, and
// visibility observers. Each threshold fires at most once per lifetime;
// Reset rearms everything for a new logical page.
type AutoTrackers struct {
	cfg  *config.Config
	norm *event.Normalizer
	bus  *bus.Bus
	clk  clock.Clock

	mu            sync.Mutex
	destroyed     bool
	scrollFired   map[int]bool
	timeFired     map[int]bool
	formStarted   map[string]bool
	timers        []clock.Timer
	visible       bool
	lastActive    time.Time
	accumulated   time.Duration
	scrollOrder   []int
	timeOrder     []int
}

// New creates the auto-trackers. Call Start to arm the time-on-page
// timers.
func New(cfg *config.Config, norm *event.Normalizer, b *bus.Bus, clk clock.Clock) *AutoTrackers {
	scrolls := append([]int(nil), cfg.ScrollThresholds...)
	sort.Ints(scrolls)
	times := append([]int(nil), cfg.TimeThresholds...)
	sort.Ints(times)

	return &AutoTrackers{
		cfg:         cfg,
		norm:        norm,
		bus:         b,
		clk:         clk,
		scrollFired: map[int]bool{},
		timeFired:   map[int]bool{},
		formStarted: map[string]bool{},
		visible:     true,
		lastActive:  clk.Now(),
		scrollOrder: scrolls,
		timeOrder:   times,
	}
}

// Start arms the time-on-page timers. Timers run on wall-clock schedules;
// accumulated visible time is tracked but does not reschedule them.
func (a *AutoTrackers) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastActive = a.clk.Now()
	a.scheduleTimersLocked(ctx)
}

func (a *AutoTrackers) scheduleTimersLocked(ctx context.Context) {
	if !a.cfg.AutoTracking.TimeOnPage {
		return
	}
	for _, threshold := range a.timeOrder {
		threshold := threshold
		t := a.clk.AfterFunc(time.Duration(threshold)*time.Second, func() {
			a.fireTime(ctx, threshold)
		})
		a.timers = append(a.timers, t)
	}
}

func (a *AutoTrackers) fireTime(ctx context.Context, threshold int) {
	a.mu.Lock()
	if a.destroyed || !a.visible || a.timeFired[threshold] {
		a.mu.Unlock()
		return
	}
	a.timeFired[threshold] = true
	a.mu.Unlock()

	ev := a.norm.Time(ctx, threshold, event.Options{Category: "engagement"})
	a.bus.Publish(ev)
}

// HandleClick processes a click landing on target. Opt-out markers are
// honored before anything else; untrackable targets are dropped.
func (a *AutoTrackers) HandleClick(ctx context.Context, target *dom.Element) {
	if !a.cfg.AutoTracking.Clicks || a.isDestroyed() {
		return
	}
	el := dom.FindTrackable(target)
	if el == nil {
		return
	}

	ev := a.norm.Click(ctx, el, event.Options{Category: "interaction"})
	a.bus.Publish(ev)
}

// HandleFocusIn fires form_start exactly once per form when focus first
// enters it.
func (a *AutoTrackers) HandleFocusIn(ctx context.Context, form *dom.Form) {
	if !a.cfg.AutoTracking.Forms || form == nil || a.isDestroyed() {
		return
	}

	a.mu.Lock()
	if a.formStarted[form.ID] {
		a.mu.Unlock()
		return
	}
	a.formStarted[form.ID] = true
	a.mu.Unlock()

	ev := a.norm.Form(ctx, form, event.TypeFormStart, event.Options{Category: "form"})
	a.bus.Publish(ev)
}

// HandleSubmit fires form_submit as a conversion with value 1.
func (a *AutoTrackers) HandleSubmit(ctx context.Context, form *dom.Form) {
	if !a.cfg.AutoTracking.Forms || form == nil || a.isDestroyed() {
		return
	}

	ev := a.norm.Form(ctx, form, event.TypeFormSubmit, event.Options{
		Category: "conversion",
		Value:    1,
	})
	a.bus.Publish(ev)
}

// HandleScroll processes one scroll tick. Each configured threshold the
// computed depth reaches fires once, in ascending order; oscillating
// scroll positions never re-fire a threshold.
func (a *AutoTrackers) HandleScroll(ctx context.Context, scrollTop, viewportHeight, documentHeight float64) {
	if !a.cfg.AutoTracking.Scroll || documentHeight <= 0 || a.isDestroyed() {
		return
	}
	pct := int(math.Round((scrollTop + viewportHeight) / documentHeight * 100))

	var due []int
	a.mu.Lock()
	for _, threshold := range a.scrollOrder {
		if pct >= threshold && !a.scrollFired[threshold] {
			a.scrollFired[threshold] = true
			due = append(due, threshold)
		}
	}
	a.mu.Unlock()

	for _, threshold := range due {
		ev := a.norm.Scroll(ctx, threshold, event.Options{Category: "engagement"})
		a.bus.Publish(ev)
	}
}

// HandleVisibility toggles the visible flag and accumulates active time
// across hidden periods.
func (a *AutoTrackers) HandleVisibility(hidden bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if hidden {
		a.accumulated += a.clk.Now().Sub(a.lastActive)
		a.visible = false
	} else {
		a.lastActive = a.clk.Now()
		a.visible = true
	}
}

// ActiveTime returns the visible time accumulated so far.
func (a *AutoTrackers) ActiveTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.visible {
		return a.accumulated + a.clk.Now().Sub(a.lastActive)
	}
	return a.accumulated
}

// Reset rearms every tracker for a new logical page: fired sets clear,
// accumulated time drops, and time timers restart. Used on single-page
// navigations where the process survives the page change.
func (a *AutoTrackers) Reset(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.scrollFired = map[int]bool{}
	a.timeFired = map[int]bool{}
	a.formStarted = map[string]bool{}
	a.accumulated = 0
	a.lastActive = a.clk.Now()
	a.visible = true

	for _, t := range a.timers {
		t.Stop()
	}
	a.timers = nil
	a.scheduleTimersLocked(ctx)
}

// Destroy stops every timer and drops all future signals.
func (a *AutoTrackers) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destroyed = true
	for _, t := range a.timers {
		t.Stop()
	}
	a.timers = nil
}

func (a *AutoTrackers) isDestroyed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destroyed
}
