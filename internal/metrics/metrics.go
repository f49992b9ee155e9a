// ABOUTME: Prometheus instrumentation for conversation routing and lifecycle
// ABOUTME: Lazily-initialized global metrics recorded by the HTTP layer and services

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the livedesk instrument set. Registered once on the default
// registry; the server exposes it on the configured metrics path.
type Metrics struct {
	transitions     *prometheus.CounterVec
	transitionFails *prometheus.CounterVec
	messages        *prometheus.CounterVec
	feedEvents      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sseClients      prometheus.Gauge
}

var (
	once sync.Once
	inst *Metrics
)

// Global returns the process-wide metrics set, creating it on first use.
func Global() *Metrics {
	once.Do(func() {
		inst = newMetrics()
	})
	return inst
}

func newMetrics() *Metrics {
	return &Metrics{
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livedesk",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Conversation transitions applied, labeled by kind",
		}, []string{"kind"}),
		transitionFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livedesk",
			Subsystem: "lifecycle",
			Name:      "transition_failures_total",
			Help:      "Rejected conversation transitions, labeled by kind and reason",
		}, []string{"kind", "reason"}),
		messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livedesk",
			Subsystem: "rooms",
			Name:      "messages_total",
			Help:      "Messages persisted, labeled by sender type and internal flag",
		}, []string{"sender", "internal"}),
		feedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livedesk",
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Change-feed invalidations published, labeled by table",
		}, []string{"table"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "livedesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request durations, labeled by route and status class",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
		sseClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "livedesk",
			Subsystem: "http",
			Name:      "sse_clients",
			Help:      "Currently connected SSE stream clients",
		}),
	}
}

// RecordTransition counts one applied transition (start, close, resolve,
// reopen, reassign).
func (m *Metrics) RecordTransition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

// RecordTransitionFailure counts a rejected transition.
func (m *Metrics) RecordTransitionFailure(kind, reason string) {
	if m == nil {
		return
	}
	m.transitionFails.WithLabelValues(kind, reason).Inc()
}

// RecordMessage counts one persisted message.
func (m *Metrics) RecordMessage(sender string, internal bool) {
	if m == nil {
		return
	}
	flag := "false"
	if internal {
		flag = "true"
	}
	m.messages.WithLabelValues(sender, flag).Inc()
}

// RecordFeedEvent counts one change-feed invalidation.
func (m *Metrics) RecordFeedEvent(table string) {
	if m == nil {
		return
	}
	m.feedEvents.WithLabelValues(table).Inc()
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}

// SSEClientConnected adjusts the connected-clients gauge.
func (m *Metrics) SSEClientConnected(delta int) {
	if m == nil {
		return
	}
	m.sseClients.Add(float64(delta))
}
