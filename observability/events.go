package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed ledger events segmented by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events not delivered to a slow stream subscriber.",
			}, []string{"sink"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordEmit increments the emitted counter for the event type.
func (m *eventMetrics) RecordEmit(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// RecordDrop increments the drop counter for sink.
func (m *eventMetrics) RecordDrop(sink string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(sink).Inc()
}
