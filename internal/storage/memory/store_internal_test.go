package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// placeOrder повторяет записи CreateOrder и возвращает длину журнала транзакции.
func placeOrder(t *testing.T, store *Store, customer domain.Customer) int {
	t.Helper()
	var journal int
	err := store.WithinTx(context.Background(), func(ctx context.Context, repos domain.Repositories) error {
		product, err := repos.Products().FindByID(ctx, "P1")
		if err != nil {
			return err
		}
		if err := repos.Products().UpdateQuantity(ctx, []domain.StockUpdate{{ID: "P1", Quantity: product.Quantity - 1}}); err != nil {
			return err
		}
		if _, err := repos.Orders().Create(ctx, domain.NewOrder{
			Customer: customer,
			Products: []domain.OrderLineItem{{ProductID: "P1", Price: product.Price, Quantity: 1}},
		}); err != nil {
			return err
		}
		if _, err := repos.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventTypeOrderCreated}); err != nil {
			return err
		}
		journal = len(repos.(txRepositories).scope.tx.steps)
		return nil
	})
	require.NoError(t, err)
	return journal
}

func TestWithinTx_JournalDoesNotGrowWithHistory(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	customer, err := store.Customers().Create(ctx, domain.Customer{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	_, err = store.Products().Create(ctx, domain.Product{ID: "P1", Name: "Pen", Price: decimal.NewFromInt(5), Quantity: 10_000})
	require.NoError(t, err)

	first := placeOrder(t, store, customer)
	// product, order, outbox sequence and outbox record
	require.Equal(t, 4, first)

	for i := 0; i < 2000; i++ {
		placeOrder(t, store, customer)
	}
	require.Equal(t, first, placeOrder(t, store, customer))
	require.Len(t, store.data.orders, 2002)
}

func TestWithinTx_PanicRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, err := store.Products().Create(ctx, domain.Product{ID: "P1", Name: "Pen", Price: decimal.NewFromInt(5), Quantity: 3})
	require.NoError(t, err)

	require.Panics(t, func() {
		_ = store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
			require.NoError(t, repos.Products().UpdateQuantity(ctx, []domain.StockUpdate{{ID: "P1", Quantity: 0}}))
			_, err := repos.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventTypeOrderCreated})
			require.NoError(t, err)
			panic("boom")
		})
	})

	product, err := store.Products().FindByID(ctx, "P1")
	require.NoError(t, err)
	require.EqualValues(t, 3, product.Quantity)
	require.Empty(t, store.data.outbox)
	require.Zero(t, store.data.outboxSeq)

	// блокировка освобождена
	require.NoError(t, store.WithinTx(ctx, func(context.Context, domain.Repositories) error { return nil }))
}

func TestOutboxRepository_MarkSentDropsRecord(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := store.Outbox()

	msg, err := repo.Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventTypeOrderCreated})
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(ctx, msg.ID))

	require.Empty(t, store.data.outbox)
	require.ErrorIs(t, repo.MarkSent(ctx, msg.ID), domain.ErrOutboxPublish)
}
