package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	// HeaderKey — заголовок с ключом идемпотентности.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed выставляется на повторённых ответах.
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
	maxBodyBytes = 1 << 20
	defaultTTL   = 24 * time.Hour
)

// Middleware повторяет сохранённый ответ для уже обработанного Idempotency-Key.
// Запросы без заголовка проходят без изменений. Ответы 5xx не сохраняются,
// ключ освобождается. Недоступность хранилища не блокирует запрос.
type Middleware struct {
	store   Store
	ttl     time.Duration
	logger  *log.Entry
	metrics *metrics.IdempotencyMetrics
}

// NewMiddleware создаёт middleware. ttl <= 0 заменяется на сутки.
func NewMiddleware(store Store, ttl time.Duration, logger *log.Entry, m *metrics.IdempotencyMetrics) *Middleware {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Middleware{store: store, ttl: ttl, logger: logger, metrics: m}
}

// Handler — chi-совместимый middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderKey)
		if key == "" || m.store == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLength {
			writeError(w, http.StatusBadRequest, "Idempotency-Key is too long.")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Request body must be valid JSON.")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := requestHash(r, body)
		record, reserved, err := m.store.Reserve(r.Context(), key, hash, m.ttl)
		if err != nil {
			m.metrics.RecordRequest("store_error")
			m.logger.WithError(err).WithField("key", key).Warn("idempotency store unavailable, serving without replay")
			next.ServeHTTP(w, r)
			return
		}
		if !reserved {
			m.replay(w, record, hash)
			return
		}

		var captured bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)

		finished := false
		defer func() {
			if !finished {
				m.release(r.Context(), key)
			}
		}()
		next.ServeHTTP(ww, r)
		finished = true

		m.finish(r.Context(), key, ww.Status(), captured.Bytes())
	})
}

func (m *Middleware) replay(w http.ResponseWriter, record Record, hash string) {
	switch {
	case record.RequestHash != hash:
		m.metrics.RecordRequest("mismatch")
		writeError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request.")
	case record.Status != StatusDone:
		m.metrics.RecordRequest("in_progress")
		writeError(w, http.StatusConflict, "A request with this Idempotency-Key is still being processed.")
	default:
		m.metrics.RecordRequest("replayed")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(HeaderReplayed, "true")
		w.WriteHeader(record.StatusCode)
		_, _ = w.Write(record.Body)
	}
}

func (m *Middleware) finish(ctx context.Context, key string, status int, body []byte) {
	ctx = context.WithoutCancel(ctx)
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		m.release(ctx, key)
		return
	}
	m.metrics.RecordRequest("stored")
	if err := m.store.Complete(ctx, key, status, body, m.ttl); err != nil {
		m.logger.WithError(err).WithField("key", key).Warn("store idempotent response failed")
	}
}

// release освобождает ключ; вызывается и при панике обработчика, которая идёт дальше к Recoverer.
func (m *Middleware) release(ctx context.Context, key string) {
	m.metrics.RecordRequest("released")
	if err := m.store.Release(context.WithoutCancel(ctx), key); err != nil {
		m.logger.WithError(err).WithField("key", key).Warn("release idempotency key failed")
	}
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{' '})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": message})
}
