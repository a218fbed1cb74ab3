package ordering

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestPlanStock(t *testing.T) {
	found := []domain.Product{
		{ID: "P1", Price: decimal.NewFromInt(5), Quantity: 10},
		{ID: "P2", Price: decimal.NewFromInt(3), Quantity: 2},
		{ID: "P3", Price: decimal.NewFromInt(1), Quantity: 0},
	}

	plan := planStock(found, []domain.OrderItemRequest{
		{ID: "P1", Quantity: 4},
		{ID: "P1", Quantity: 100},
		{ID: "P2", Quantity: 5},
		{ID: "P3", Quantity: 1},
	})

	require.Equal(t, 2, plan.outOfStock)
	require.Equal(t, []domain.StockUpdate{{ID: "P1", Quantity: 6}}, plan.updates)
	require.Len(t, plan.items, 1)
	require.EqualValues(t, 4, plan.items[0].Quantity)
	require.EqualValues(t, 4, plan.units())
}

func TestPlanStock_SkipsProductsWithoutRequest(t *testing.T) {
	plan := planStock(
		[]domain.Product{{ID: "P9", Quantity: 1}},
		[]domain.OrderItemRequest{{ID: "P1", Quantity: 1}},
	)
	require.Zero(t, plan.outOfStock)
	require.Empty(t, plan.updates)
	require.Empty(t, plan.items)
}
