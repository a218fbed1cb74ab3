package idempotency

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore — Store в памяти процесса. Просроченные записи удаляет CleanupWorker.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.records[key]; ok && existing.ExpiresAt.After(now) {
		return cloneRecord(existing), false, nil
	}

	record := Record{
		Key:         key,
		RequestHash: requestHash,
		Status:      StatusProcessing,
		ExpiresAt:   now.Add(ttl),
	}
	s.records[key] = record
	return cloneRecord(record), true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, key string, statusCode int, body []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil
	}
	record.Status = StatusDone
	record.StatusCode = statusCode
	record.Body = append([]byte(nil), body...)
	record.ExpiresAt = s.now().Add(ttl)
	s.records[key] = record
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// DeleteExpired удаляет не более limit записей, истёкших к before.
// Удаляются самые старые записи.
func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]Record, 0)
	for _, record := range s.records {
		if !record.ExpiresAt.After(before) {
			expired = append(expired, record)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, record := range expired {
		delete(s.records, record.Key)
	}
	return len(expired), nil
}

// Len возвращает число хранимых записей.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func cloneRecord(r Record) Record {
	r.Body = append([]byte(nil), r.Body...)
	return r
}

var _ Store = (*MemoryStore)(nil)
