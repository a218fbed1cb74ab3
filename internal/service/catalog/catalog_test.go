package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestCustomerService(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewCustomerService(memory.NewStore().Customers(), nil)

	created, err := svc.CreateCustomer(ctx, "  Ann ", " ann@example.com ")
	require.NoError(t, err)
	require.Equal(t, "Ann", created.Name)
	require.Equal(t, "ann@example.com", created.Email)

	got, err := svc.GetCustomer(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = svc.CreateCustomer(ctx, "Ann Again", "ann@example.com")
	require.ErrorIs(t, err, domain.ErrCustomerEmailTaken)

	_, err = svc.CreateCustomer(ctx, "", "nope")
	require.ErrorIs(t, err, domain.ErrCustomerNameRequired)
	require.ErrorIs(t, err, domain.ErrCustomerEmailInvalid)

	_, err = svc.GetCustomer(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)
}

func TestProductService(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewProductService(memory.NewStore().Products(), nil)

	created, err := svc.CreateProduct(ctx, "Pen", decimal.RequireFromString("5.00"), 10)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, got.Price.Equal(decimal.NewFromInt(5)))
	require.EqualValues(t, 10, got.Quantity)

	_, err = svc.CreateProduct(ctx, "Pen", decimal.NewFromInt(1), 1)
	require.ErrorIs(t, err, domain.ErrProductNameTaken)

	_, err = svc.CreateProduct(ctx, " ", decimal.NewFromInt(-1), -1)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, validation.Problems, 3)

	_, err = svc.GetProduct(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestProductService_RejectsUnstorablePrices(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := catalog.NewProductService(store.Products(), nil)

	_, err := svc.CreateProduct(ctx, "Pen", decimal.RequireFromString("5.555"), 1)
	require.ErrorIs(t, err, domain.ErrProductPricePrecision)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, validation.Problems, 1)

	_, err = svc.CreateProduct(ctx, "Pen", decimal.RequireFromString("1e10"), 1)
	require.ErrorIs(t, err, domain.ErrProductPriceTooLarge)

	created, err := svc.CreateProduct(ctx, "Pen", decimal.RequireFromString("5.50"), 1)
	require.NoError(t, err)
	require.Equal(t, "5.5", created.Price.String())
}
