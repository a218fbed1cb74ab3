package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

type storage struct {
	customers domain.CustomerRepository
	products  domain.ProductRepository
	orders    domain.OrderRepository
	outbox    domain.OutboxRepository
	tx        domain.Transactor
	// pinger задан только у внешних бэкендов.
	pinger health.Pinger
	close  func() error
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storage, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &storage{
			customers: store.Customers(),
			products:  store.Products(),
			orders:    store.Orders(),
			outbox:    store.Outbox(),
			tx:        store,
			close:     func() error { return nil },
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			status, err := store.Status(ctx)
			if err == nil {
				logger.WithFields(log.Fields{
					"version": status.Version,
					"applied": status.Applied,
				}).Info("postgres migrations applied")
			}
		}
		logger.Info("using postgres storage")
		return &storage{
			customers: store.Customers(),
			products:  store.Products(),
			orders:    store.Orders(),
			outbox:    store.Outbox(),
			tx:        store,
			pinger:    store,
			close:     store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
