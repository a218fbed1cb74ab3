package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики оформления заказов.
type OrderMetrics struct {
	created  prometheus.Counter
	rejected *prometheus.CounterVec
	failed   prometheus.Counter
	units    prometheus.Counter
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewOrderMetricsWithRegisterer регистрирует метрики заказов в переданном реестре.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		created: register(registerer, "storefront_orders_created_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created",
		})),
		rejected: register(registerer, "storefront_orders_rejected_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_orders_rejected_total",
			Help: "Total number of order requests rejected by business rules",
		}, []string{"kind"})),
		failed: register(registerer, "storefront_orders_failed_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_failed_total",
			Help: "Total number of order requests failed with an infrastructure error",
		})),
		units: register(registerer, "storefront_order_units_sold_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_order_units_sold_total",
			Help: "Total number of product units sold",
		})),
		duration: register(registerer, "storefront_order_create_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_order_create_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		})),
		inFlight: register(registerer, "storefront_order_create_in_flight", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_order_create_in_flight",
			Help: "Number of order creations currently in progress",
		})),
	}
}

// Started отмечает начало оформления и возвращает функцию завершения,
// которая записывает длительность.
func (m *OrderMetrics) Started() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.duration.Observe(time.Since(start).Seconds())
	}
}

// RecordCreated учитывает созданный заказ и проданные единицы.
func (m *OrderMetrics) RecordCreated(units int64) {
	if m == nil {
		return
	}
	m.created.Inc()
	m.units.Add(float64(units))
}

// RecordRejected учитывает отказ с указанным типом ошибки.
func (m *OrderMetrics) RecordRejected(kind string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(kind).Inc()
}

// RecordFailed учитывает инфраструктурный сбой.
func (m *OrderMetrics) RecordFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}
