package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Цена хранится в NUMERIC(12, 2).
const (
	priceScale  = 2
	priceDigits = 12
)

// maxPrice — первая цена, которая не помещается в NUMERIC(12, 2).
var maxPrice = decimal.New(1, priceDigits-priceScale)

// Product — товар каталога вместе с доступным остатком.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	// Quantity — доступный остаток на складе, не может быть отрицательным.
	Quantity  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockUpdate задаёт новое абсолютное значение остатка товара.
type StockUpdate struct {
	ID       string
	Quantity int64
}

// Validate проверяет инварианты товара.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrProductPriceNegative)
	}
	if !p.Price.Equal(p.Price.Truncate(priceScale)) {
		errs = append(errs, ErrProductPricePrecision)
	}
	if p.Price.Abs().GreaterThanOrEqual(maxPrice) {
		errs = append(errs, ErrProductPriceTooLarge)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrProductQuantityNegative)
	}

	return errs
}
