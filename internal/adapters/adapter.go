// Package adapters translates canonical tracking events into third-party
// vendor tracking calls. Each adapter owns one vendor's event vocabulary
// and parameter shape; the registry fans events out to all of them.
package adapters

import (
	"fmt"

	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/metrics"
)

// Call invokes a vendor tag function. Command and name follow the
// vendor's own convention (gtag's "event"/"config", fbq's "track").
// A nil Call means the vendor is absent from the environment.
type Call func(command, name string, params map[string]interface{}) error

// Adapter is the common vendor contract. Availability is evaluated once
// at registration, not on every call.
type Adapter interface {
	Name() string
	Available() bool
	Init(cfg config.AdaptersConfig)
	Track(ev event.TrackingEvent)
}

// PageviewAdapter is the optional page-view capability; not every vendor
// has a distinct page-view signal.
type PageviewAdapter interface {
	Pageview(page event.PageInfo)
}

// Registry holds the active adapter set in registration order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register admits an adapter if its vendor is available, initializing it
// with the adapter section of the configuration. Returns whether the
// adapter was admitted.
func (r *Registry) Register(a Adapter, cfg config.AdaptersConfig) bool {
	if !a.Available() {
		logger.Debug("adapters: vendor not available, skipping", "adapter", a.Name())
		return false
	}
	a.Init(cfg)
	r.adapters = append(r.adapters, a)
	logger.Debug("adapters: registered", "adapter", a.Name())
	return true
}

// Names returns the registered adapter names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int { return len(r.adapters) }

// Dispatch fans one event out to every adapter, in registration order.
// A failing adapter never affects the others or the caller.
func (r *Registry) Dispatch(ev event.TrackingEvent) {
	for _, a := range r.adapters {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					metrics.AdapterErrors.WithLabelValues(a.Name()).Inc()
					logger.Error("adapters: vendor call panicked",
						"adapter", a.Name(), "event", ev.Name, "panic", fmt.Sprintf("%v", rec))
				}
			}()
			a.Track(ev)
		}()
	}
}

// Pageview notifies every adapter implementing the page-view capability.
func (r *Registry) Pageview(page event.PageInfo) {
	for _, a := range r.adapters {
		pv, ok := a.(PageviewAdapter)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					metrics.AdapterErrors.WithLabelValues(a.Name()).Inc()
					logger.Error("adapters: pageview call panicked",
						"adapter", a.Name(), "panic", fmt.Sprintf("%v", rec))
				}
			}()
			pv.Pageview(page)
		}()
	}
}

// invoke runs a vendor call, absorbing and logging any error.
func invoke(name string, call Call, command, eventName string, params map[string]interface{}) {
	if err := call(command, eventName, params); err != nil {
		metrics.AdapterErrors.WithLabelValues(name).Inc()
		logger.Error("adapters: vendor call failed", "adapter", name, "event", eventName, "error", err)
	}
}

// dropEmpty removes nil and empty-string values so vendors never receive
// undefined parameters.
func dropEmpty(params map[string]interface{}) {
	for k, v := range params {
		if v == nil {
			delete(params, k)
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			delete(params, k)
		}
	}
}
