// Package metrics provides Prometheus metrics instrumentation for the
// tracking pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTracked counts canonical events entering the pipeline.
	EventsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_events_total",
			Help: "Canonical events entering the pipeline",
		},
		[]string{"type"},
	)

	// AdapterErrors counts vendor calls that errored or panicked.
	AdapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_adapter_errors_total",
			Help: "Vendor adapter calls that errored",
		},
		[]string{"adapter"},
	)

	// EventsDelivered counts events the collector confirmed processed.
	EventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_events_delivered_total",
			Help: "Events confirmed processed by the collector",
		},
	)

	// DeliveryFailures counts failed batch delivery attempts.
	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_delivery_failures_total",
			Help: "Failed batch delivery attempts to the collector",
		},
	)

	// QueueDepth tracks pending events in the durable queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracking_queue_depth",
			Help: "Pending events in the durable queue",
		},
	)

	// CollectorRequests counts requests handled by the stub collector.
	CollectorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_requests_total",
			Help: "Requests handled by the stub collector",
		},
		[]string{"path", "status"},
	)
)
