package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "storefront:idem:"

// RedisStore — Store поверх Redis. Истечение ключей обеспечивает TTL самого Redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore создаёт хранилище. Пустой prefix заменяется значением по умолчанию.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (Record, bool, error) {
	record := Record{
		Key:         key,
		RequestHash: requestHash,
		Status:      StatusProcessing,
		ExpiresAt:   s.now().Add(ttl),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return Record{}, false, fmt.Errorf("marshal idempotency record: %w", err)
	}

	// Ключ может истечь между SetNX и Get: тогда пробуем занять его ещё раз.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, s.key(key), payload, ttl).Result()
		if err != nil {
			return Record{}, false, fmt.Errorf("%w: setnx: %v", ErrStoreUnavailable, err)
		}
		if ok {
			return record, true, nil
		}

		existing, err := s.get(ctx, key)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Record{}, false, err
		}
		return existing, false, nil
	}
	return Record{}, false, fmt.Errorf("%w: key %q keeps expiring", ErrStoreUnavailable, key)
}

func (s *RedisStore) get(ctx context.Context, key string) (Record, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, err
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: get: %v", ErrStoreUnavailable, err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	return record, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, statusCode int, body []byte, ttl time.Duration) error {
	existing, err := s.get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	existing.Status = StatusDone
	existing.StatusCode = statusCode
	existing.Body = body
	existing.ExpiresAt = s.now().Add(ttl)
	payload, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrStoreUnavailable, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
