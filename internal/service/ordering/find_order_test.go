package ordering_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

func TestFindOrder(t *testing.T) {
	store := newShop(t)
	created, err := ordering.NewCreateOrderService(store).Execute(context.Background(), ordering.CreateOrderRequest{
		CustomerID: "C1",
		Products:   items("P1", 2),
	})
	require.NoError(t, err)

	svc := ordering.NewFindOrderService(store.Orders())

	found, err := svc.Execute(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
	require.Equal(t, "Ann", found.Customer.Name)
	require.Len(t, found.Products, 1)

	_, err = svc.Execute(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
