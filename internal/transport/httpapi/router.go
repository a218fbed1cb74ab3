package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// RouterOptions — необязательные middleware маршрутизатора.
type RouterOptions struct {
	// Metrics оборачивает все маршруты, например metrics.HTTPMetrics.Middleware.
	Metrics func(http.Handler) http.Handler
	// Idempotency применяется только к POST /orders.
	Idempotency func(http.Handler) http.Handler
}

// NewRouter собирает chi-маршрутизатор REST API.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics)
	}

	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.postCustomer)
		r.Get("/{id}", h.getCustomer)
	})
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.postProduct)
		r.Get("/{id}", h.getProduct)
	})
	r.Route("/orders", func(r chi.Router) {
		if opts.Idempotency != nil {
			r.With(opts.Idempotency).Post("/", h.postOrder)
		} else {
			r.Post("/", h.postOrder)
		}
		r.Get("/{id}", h.getOrder)
	})
	return r
}

// requestLogger пишет строку лога на каждый запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Debug("http request")
		})
	}
}
