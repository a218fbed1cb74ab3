package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	envHTTPAddr                   = "STOREFRONT_HTTP_ADDR"
	envGRPCAddr                   = "STOREFRONT_GRPC_ADDR"
	envMetricsAddr                = "STOREFRONT_METRICS_ADDR"
	envStorageDriver              = "STOREFRONT_STORAGE_DRIVER"
	envPostgresDSN                = "STOREFRONT_POSTGRES_DSN"
	envPostgresAutoMigrate        = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers               = "STOREFRONT_KAFKA_BROKERS"
	envKafkaTopic                 = "STOREFRONT_KAFKA_TOPIC"
	envKafkaDLQTopic              = "STOREFRONT_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval         = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize            = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts          = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay           = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envRedisAddr                  = "STOREFRONT_REDIS_ADDR"
	envIdempotencyTTL             = "STOREFRONT_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval = "STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL"
	envShutdownTimeout            = "STOREFRONT_SHUTDOWN_TIMEOUT"
	envLogLevel                   = "STOREFRONT_LOG_LEVEL"
	envLogFormat                  = "STOREFRONT_LOG_FORMAT"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers пуст: события outbox пишутся в лог.
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	// RedisAddr пуст: ключи идемпотентности хранятся в памяти процесса.
	RedisAddr                  string
	IdempotencyTTL             time.Duration
	IdempotencyCleanupInterval time.Duration

	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                   ":8080",
		GRPCAddr:                   ":50051",
		MetricsAddr:                ":9090",
		StorageDriver:              StorageDriverMemory,
		PostgresAutoMigrate:        true,
		KafkaTopic:                 "storefront.order.events",
		KafkaDLQTopic:              "storefront.dlq",
		OutboxPollInterval:         time.Second,
		OutboxBatchSize:            100,
		OutboxMaxAttempts:          5,
		OutboxRetryDelay:           200 * time.Millisecond,
		IdempotencyTTL:             24 * time.Hour,
		IdempotencyCleanupInterval: 10 * time.Minute,
		ShutdownTimeout:            10 * time.Second,
		LogLevel:                   "info",
		LogFormat:                  LogFormatText,
	}
}

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfig накладывает переменные окружения STOREFRONT_* на DefaultConfig.
// Все некорректные значения собираются в одну ошибку.
func LoadConfig(lookup EnvLookup) (Config, error) {
	cfg := DefaultConfig()
	var problems []error

	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseBool(v)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	setDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseDuration(v, valid, rule)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	setString(envKafkaTopic, &cfg.KafkaTopic)
	setString(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")

	setString(envRedisAddr, &cfg.RedisAddr)
	setDuration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive, "must be > 0")
	setDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")

	setDuration(envShutdownTimeout, &cfg.ShutdownTimeout, positive, "must be > 0")
	setString(envLogLevel, &cfg.LogLevel)
	setString(envLogFormat, &cfg.LogFormat)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		problems = append(problems, err)
	}
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var problems []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			problems = append(problems, fmt.Errorf("%s is required for postgres storage", envPostgresDSN))
		}
	default:
		problems = append(problems, fmt.Errorf("unsupported storage driver %q (use memory|postgres)", c.StorageDriver))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Errorf("%s: %w", envLogLevel, err))
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		problems = append(problems, fmt.Errorf("%s: unsupported format %q (use text|json)", envLogFormat, c.LogFormat))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		problems = append(problems, fmt.Errorf("%s must not be empty when brokers are set", envKafkaTopic))
	}
	return errors.Join(problems...)
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
