package ordering

import (
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/storefront/internal/service/ordering"

type options struct {
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	tracer  trace.Tracer
}

// Option настраивает сервисы заказов.
type Option func(*options)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics включает запись Prometheus-метрик.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracerProvider задаёт провайдер трассировки вместо глобального.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		logger: log.WithField("component", component),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
