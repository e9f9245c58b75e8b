package observability

import (
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestLedgerMetricsRecordOperations(t *testing.T) {
	m := Ledger()
	before := testutil.ToFloat64(m.operations.WithLabelValues("contribute", "validation"))
	m.ObserveOperation("contribute", "validation", time.Millisecond)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("contribute", "validation")); got != before+1 {
		t.Fatalf("expected operation counter %v, got %v", before+1, got)
	}

	m.SetPoolBalance("help", big.NewInt(1500))
	if got := testutil.ToFloat64(m.poolBalance.WithLabelValues("help")); got != 1500 {
		t.Fatalf("unexpected pool gauge %v", got)
	}

	forfeited := testutil.ToFloat64(m.forfeited.WithLabelValues("unspecified"))
	m.RecordForfeit(" ", big.NewInt(7))
	m.RecordForfeit("capped", big.NewInt(0))
	if got := testutil.ToFloat64(m.forfeited.WithLabelValues("unspecified")); got != forfeited+7 {
		t.Fatalf("unexpected forfeit counter %v", got)
	}

	m.SetPaused(true)
	if got := testutil.ToFloat64(m.paused); got != 1 {
		t.Fatalf("expected paused gauge 1, got %v", got)
	}
	m.SetPaused(false)
	if got := testutil.ToFloat64(m.paused); got != 0 {
		t.Fatalf("expected paused gauge 0, got %v", got)
	}
}

func latencySamples(t *testing.T, m *LedgerMetrics, op string) (uint64, float64) {
	t.Helper()
	metric, ok := m.latency.WithLabelValues(op).(prometheus.Metric)
	if !ok {
		t.Fatalf("latency observer is not a metric")
	}
	var out dto.Metric
	if err := metric.Write(&out); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	hist := out.GetHistogram()
	return hist.GetSampleCount(), hist.GetSampleSum()
}

func TestLedgerMetricsLatencyHistogram(t *testing.T) {
	m := Ledger()
	count, sum := latencySamples(t, m, "distribute_pool")
	m.ObserveOperation("distribute_pool", "", 250*time.Millisecond)
	m.ObserveOperation("distribute_pool", "scheduling", 750*time.Millisecond)
	gotCount, gotSum := latencySamples(t, m, "distribute_pool")
	if gotCount != count+2 {
		t.Fatalf("expected %d samples, got %d", count+2, gotCount)
	}
	if delta := gotSum - sum; delta < 0.999 || delta > 1.001 {
		t.Fatalf("expected 1s of observed latency, got %v", delta)
	}
}

func TestAPIMetricsObserve(t *testing.T) {
	m := API()
	m.Observe("/v1/withdrawals", http.MethodPost, http.StatusConflict, time.Millisecond)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("/v1/withdrawals", http.MethodPost, "409")); got < 1 {
		t.Fatalf("expected error counter to be recorded, got %v", got)
	}
	m.RecordThrottle("", "")
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")); got < 1 {
		t.Fatalf("expected throttle counter to be recorded, got %v", got)
	}

	var nilMetrics *LedgerMetrics
	nilMetrics.ObserveOperation("noop", "", 0)
	nilMetrics.RecordInvariantViolation()
}

func TestBigToFloat(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 2000)
	if got := bigToFloat(huge); got != 0 {
		t.Fatalf("expected overflow to map to 0, got %v", got)
	}
	if got := bigToFloat(nil); got != 0 {
		t.Fatalf("expected nil to map to 0, got %v", got)
	}
	if got := bigToFloat(big.NewInt(42)); got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}
