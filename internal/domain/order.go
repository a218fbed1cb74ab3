package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItemRequest — запрошенная позиция: идентификатор товара и количество.
type OrderItemRequest struct {
	ID       string
	Quantity int64
}

// OrderLineItem представляет одну позицию заказа.
type OrderLineItem struct {
	ID        string
	OrderID   string
	ProductID string
	// Price — цена товара на момент оформления заказа.
	Price     decimal.Decimal
	Quantity  int64
	CreatedAt time.Time
}

// Subtotal возвращает price * quantity.
func (i OrderLineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// Order агрегирует клиента и позиции заказа.
type Order struct {
	ID        string
	Customer  Customer
	Products  []OrderLineItem
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder — данные для сохранения нового заказа.
// Идентификаторы и временные метки назначает хранилище.
type NewOrder struct {
	Customer Customer
	Products []OrderLineItem
}

// Total считает сумму заказа по позициям.
func (n NewOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range n.Products {
		total = total.Add(item.Subtotal())
	}
	return total
}
