package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxRelayMetrics records delivery outcomes for the publisher relay.
type OutboxRelayMetrics struct {
	published   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	quarantined *prometheus.CounterVec
	cycle       prometheus.Histogram
	pending     prometheus.Gauge
}

// NewOutboxRelayMetrics registers the relay metrics on the provided registerer.
func NewOutboxRelayMetrics(reg prometheus.Registerer) *OutboxRelayMetrics {
	if reg == nil {
		return &OutboxRelayMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_messages_published",
		Help: "Messages delivered to the broker.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_messages_failed",
		Help: "Transient delivery failures scheduled for retry.",
	}, []string{"event_type"})
	quarantined := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_messages_quarantined",
		Help: "Messages moved to the dead letter table.",
	}, []string{"event_type", "reason"})
	cycle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_relay_cycle_seconds",
		Help:    "Duration of one claim-and-publish cycle.",
		Buckets: prometheus.DefBuckets,
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_messages_pending",
		Help: "Rows waiting for delivery at the last observation.",
	})
	reg.MustRegister(published, failed, quarantined, cycle, pending)
	return &OutboxRelayMetrics{
		published:   published,
		failed:      failed,
		quarantined: quarantined,
		cycle:       cycle,
		pending:     pending,
	}
}

// IncPublished increments the delivered counter for the event type.
func (m *OutboxRelayMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed increments the transient failure counter for the event type.
func (m *OutboxRelayMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncQuarantined increments the dead letter counter for the event type.
func (m *OutboxRelayMetrics) IncQuarantined(eventType, reason string) {
	if m == nil || m.quarantined == nil {
		return
	}
	m.quarantined.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

// ObserveCycle records the duration of a relay cycle.
func (m *OutboxRelayMetrics) ObserveCycle(duration time.Duration) {
	if m == nil || m.cycle == nil {
		return
	}
	m.cycle.Observe(duration.Seconds())
}

// SetPending records the observed pending row count.
func (m *OutboxRelayMetrics) SetPending(count int64) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(count))
}
