// Package idempotency реализует повтор ответа по заголовку Idempotency-Key.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// Status — состояние ключа идемпотентности.
type Status string

const (
	// StatusProcessing — запрос принят и ещё выполняется.
	StatusProcessing Status = "processing"
	// StatusDone — ответ сохранён и может быть повторён.
	StatusDone Status = "done"
)

// ErrStoreUnavailable оборачивает ошибки хранилища ключей.
var ErrStoreUnavailable = errors.New("idempotency store unavailable")

// Record — сохранённое состояние запроса.
type Record struct {
	Key         string    `json:"key"`
	RequestHash string    `json:"request_hash"`
	Status      Status    `json:"status"`
	StatusCode  int       `json:"status_code,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store хранит ключи идемпотентности.
type Store interface {
	// Reserve атомарно занимает ключ. Если ключ уже занят, возвращает
	// существующую запись и false.
	Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (Record, bool, error)
	// Complete сохраняет ответ для занятого ключа.
	Complete(ctx context.Context, key string, statusCode int, body []byte, ttl time.Duration) error
	// Release освобождает ключ, чтобы запрос можно было повторить.
	Release(ctx context.Context, key string) error
}
