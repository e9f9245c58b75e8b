package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiMetricsOnce sync.Once
	apiRegistry    *apiMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// API returns the lazily-initialised registry recording HTTP activity.
func API() *apiMetrics {
	apiMetricsOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total ledger API requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total ledger API errors segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "leadfive",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for ledger API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			apiRegistry.requests,
			apiRegistry.errors,
			apiRegistry.latency,
			apiRegistry.throttles,
		)
	})
	return apiRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status ultimately written to the response writer.
func (m *apiMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *apiMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// LedgerMetrics bundles the collectors exported by the ledger engine.
type LedgerMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	credited     *prometheus.CounterVec
	forfeited    *prometheus.CounterVec
	poolBalance  *prometheus.GaugeVec
	participants prometheus.Gauge
	paused       prometheus.Gauge
	invariants   prometheus.Counter
}

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and error kind.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "leadfive",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			credited: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "ledger",
				Name:      "credited_amount_total",
				Help:      "Amount credited to participants segmented by bonus category.",
			}, []string{"category"}),
			forfeited: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "ledger",
				Name:      "forfeited_amount_total",
				Help:      "Amount that could not be delivered segmented by reason.",
			}, []string{"reason"}),
			poolBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "leadfive",
				Subsystem: "ledger",
				Name:      "pool_balance",
				Help:      "Current accrued balance per pool.",
			}, []string{"pool"}),
			participants: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "leadfive",
				Subsystem: "ledger",
				Name:      "participants",
				Help:      "Number of registered participants.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "leadfive",
				Subsystem: "ledger",
				Name:      "paused",
				Help:      "Set to 1 while mutations are suspended.",
			}),
			invariants: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "leadfive",
				Subsystem: "ledger",
				Name:      "invariant_violations_total",
				Help:      "Operations aborted because a ledger invariant failed.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.credited,
			ledgerRegistry.forfeited,
			ledgerRegistry.poolBalance,
			ledgerRegistry.participants,
			ledgerRegistry.paused,
			ledgerRegistry.invariants,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records an operation outcome. Outcome is "ok" or the error
// kind.
func (m *LedgerMetrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordCredit adds a credited amount for category.
func (m *LedgerMetrics) RecordCredit(category string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.credited.WithLabelValues(category).Add(bigToFloat(amount))
}

// RecordForfeit adds an undelivered amount for reason.
func (m *LedgerMetrics) RecordForfeit(reason string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.forfeited.WithLabelValues(reason).Add(bigToFloat(amount))
}

// SetPoolBalance updates the gauge for pool.
func (m *LedgerMetrics) SetPoolBalance(pool string, balance *big.Int) {
	if m == nil {
		return
	}
	m.poolBalance.WithLabelValues(pool).Set(bigToFloat(balance))
}

// SetParticipants updates the participant gauge.
func (m *LedgerMetrics) SetParticipants(n int) {
	if m == nil {
		return
	}
	m.participants.Set(float64(n))
}

// SetPaused toggles the paused gauge.
func (m *LedgerMetrics) SetPaused(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

// RecordInvariantViolation increments the invariant violation counter.
func (m *LedgerMetrics) RecordInvariantViolation() {
	if m == nil {
		return
	}
	m.invariants.Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
