package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestOrderMetrics_Record(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	done := m.Started()
	if got := gaugeValue(t, m.inFlight); got != 1 {
		t.Fatalf("expected 1 in-flight, got %v", got)
	}
	m.RecordCreated(4)
	done()

	if got := gaugeValue(t, m.inFlight); got != 0 {
		t.Fatalf("expected 0 in-flight, got %v", got)
	}
	if got := counterValue(t, m.created); got != 1 {
		t.Fatalf("expected 1 created, got %v", got)
	}
	if got := counterValue(t, m.units); got != 4 {
		t.Fatalf("expected 4 units, got %v", got)
	}

	m.RecordRejected("InsufficientStock")
	m.RecordRejected("InsufficientStock")
	m.RecordFailed()
	if got := counterValue(t, m.rejected.WithLabelValues("InsufficientStock")); got != 2 {
		t.Fatalf("expected 2 rejections, got %v", got)
	}
	if got := counterValue(t, m.failed); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestOrderMetrics_NilSafe(t *testing.T) {
	var m *OrderMetrics
	m.Started()()
	m.RecordCreated(1)
	m.RecordRejected("x")
	m.RecordFailed()
}

func TestRegister_ReusesExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordCreated(1)
	if got := counterValue(t, second.created); got != 1 {
		t.Fatalf("expected shared counter, got %v", got)
	}
}

func TestRegister_PanicsOnTypeMismatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "storefront_orders_created_total", Help: "x"}))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on type mismatch")
		}
	}()
	NewOrderMetricsWithRegisterer(reg)
}

func TestHTTPMetrics_UsesRoutePattern(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))

	if got := counterValue(t, m.requests.WithLabelValues(http.MethodGet, "/orders/{id}", "404")); got != 1 {
		t.Fatalf("expected 1 request for route pattern, got %v", got)
	}
}

func TestNewGRPCServerMetrics_ReusesRegisteredCollector(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewGRPCServerMetrics(reg)
	second := NewGRPCServerMetrics(reg)

	if first != second {
		t.Fatal("expected the already registered grpc metrics to be reused")
	}
}

func TestIdempotencyMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIdempotencyMetrics(reg)

	m.RecordRequest("replayed")
	m.RecordCleanup(3, nil)
	m.RecordCleanup(0, errors.New("boom"))

	var nilMetrics *IdempotencyMetrics
	nilMetrics.RecordRequest("stored")
	nilMetrics.RecordCleanup(1, nil)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	for _, name := range []string{
		"storefront_idempotency_requests_total",
		"storefront_idempotency_cleanup_runs_total",
		"storefront_idempotency_cleanup_deleted_total",
	} {
		if !found[name] {
			t.Errorf("metric %s was not gathered", name)
		}
	}
}
