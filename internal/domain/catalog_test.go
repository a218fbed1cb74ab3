package domain_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCustomerValidate(t *testing.T) {
	cases := []struct {
		name     string
		customer domain.Customer
		want     []error
	}{
		{
			name:     "valid",
			customer: domain.Customer{Name: "Ada", Email: "ada@example.com"},
		},
		{
			name:     "missing name",
			customer: domain.Customer{Email: "ada@example.com"},
			want:     []error{domain.ErrCustomerNameRequired},
		},
		{
			name:     "missing email",
			customer: domain.Customer{Name: "Ada", Email: "  "},
			want:     []error{domain.ErrCustomerEmailRequired},
		},
		{
			name:     "invalid email",
			customer: domain.Customer{Name: "Ada", Email: "ada.example.com"},
			want:     []error{domain.ErrCustomerEmailInvalid},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.customer.Validate()
			assertErrors(t, got, tc.want)
		})
	}
}

func TestProductValidate(t *testing.T) {
	cases := []struct {
		name    string
		product domain.Product
		want    []error
	}{
		{
			name:    "valid",
			product: domain.Product{Name: "Mug", Price: decimal.RequireFromString("9.90"), Quantity: 3},
		},
		{
			name:    "zero stock is allowed",
			product: domain.Product{Name: "Mug", Price: decimal.Zero},
		},
		{
			name:    "trailing zeros within scale",
			product: domain.Product{Name: "Mug", Price: decimal.RequireFromString("9.9000")},
		},
		{
			name:    "largest storable price",
			product: domain.Product{Name: "Mug", Price: decimal.RequireFromString("9999999999.99")},
		},
		{
			name:    "more than two decimal places",
			product: domain.Product{Name: "Mug", Price: decimal.RequireFromString("5.555")},
			want:    []error{domain.ErrProductPricePrecision},
		},
		{
			name:    "price out of column range",
			product: domain.Product{Name: "Mug", Price: decimal.RequireFromString("10000000000")},
			want:    []error{domain.ErrProductPriceTooLarge},
		},
		{
			name:    "all invalid",
			product: domain.Product{Price: decimal.RequireFromString("-1"), Quantity: -1},
			want: []error{
				domain.ErrProductNameRequired,
				domain.ErrProductPriceNegative,
				domain.ErrProductQuantityNegative,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertErrors(t, tc.product.Validate(), tc.want)
		})
	}
}

func assertErrors(t *testing.T, got, want []error) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("expected %d errors, got %v", len(want), got)
	}
	for i := range want {
		if !errors.Is(got[i], want[i]) {
			t.Fatalf("error %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
