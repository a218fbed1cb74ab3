package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	scope scope
}

// Create сохраняет заказ и назначает идентификаторы позициям.
func (r *orderRepository) Create(_ context.Context, order domain.NewOrder) (domain.Order, error) {
	now := time.Now().UTC()
	created := domain.Order{
		ID:        uuid.NewString(),
		Customer:  order.Customer,
		Products:  make([]domain.OrderLineItem, 0, len(order.Products)),
		Total:     order.Total(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, item := range order.Products {
		item.ID = uuid.NewString()
		item.OrderID = created.ID
		item.CreatedAt = now
		created.Products = append(created.Products, item)
	}

	err := r.scope.write(func(m mutation) error {
		m.putOrder(created)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return cloneOrder(created), nil
}

// FindByID возвращает заказ или ErrOrderNotFound.
func (r *orderRepository) FindByID(_ context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := r.scope.read(func(d *dataset) error {
		found, ok := d.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = cloneOrder(found)
		return nil
	})
	return order, err
}

// cloneOrder защищает сохранённые позиции от мутаций вызывающей стороной.
func cloneOrder(order domain.Order) domain.Order {
	items := make([]domain.OrderLineItem, len(order.Products))
	copy(items, order.Products)
	order.Products = items
	return order
}

var _ domain.OrderRepository = (*orderRepository)(nil)
