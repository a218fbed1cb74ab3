package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const redisPingTimeout = 2 * time.Second

// publishers — куда outbox worker отправляет события и DLQ.
type publishers struct {
	main     domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initPublishers подключает Kafka. Без брокеров или при ошибке подключения
// события пишутся в лог, сервис продолжает работу.
func initPublishers(cfg Config, logger *log.Entry) publishers {
	fallback := publishers{main: outbox.NewLogPublisher(logger.WithField("publisher", "log"))}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka is not configured, outbox events go to log")
		return fallback
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return fallback
	}
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
	return publishers{
		main:     kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		dlq:      kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
		producer: producer,
	}
}

func (p publishers) close(logger *log.Entry) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// idempotencyBackend — хранилище Idempotency-Key и, для памяти, воркер очистки.
type idempotencyBackend struct {
	store   idempotency.Store
	cleanup *idempotency.CleanupWorker
	redis   *redis.Client
}

// initIdempotency подключает Redis. Без адреса или при недоступности Redis
// используется хранилище в памяти.
func initIdempotency(ctx context.Context, cfg Config, logger *log.Entry, opts ...idempotency.CleanupOption) idempotencyBackend {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			logger.WithField("addr", cfg.RedisAddr).Info("redis idempotency store initialized")
			return idempotencyBackend{store: idempotency.NewRedisStore(client, ""), redis: client}
		}
		_ = client.Close()
		logger.WithError(err).Warn("redis is unreachable, using in-memory idempotency store")
	}

	store := idempotency.NewMemoryStore()
	opts = append([]idempotency.CleanupOption{
		idempotency.WithCleanupInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithCleanupLogger(logger.WithField("worker", "idempotency-cleanup")),
	}, opts...)
	return idempotencyBackend{store: store, cleanup: idempotency.NewCleanupWorker(store, opts...)}
}

func (b idempotencyBackend) ping(ctx context.Context) error {
	return b.redis.Ping(ctx).Err()
}

func (b idempotencyBackend) close(logger *log.Entry) {
	if b.redis == nil {
		return
	}
	if err := b.redis.Close(); err != nil {
		logger.WithError(err).Warn("failed to close redis client")
	}
}
