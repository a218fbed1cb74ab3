package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	q dbtx
	// db задан только вне транзакции: тогда Create открывает собственную.
	db *sql.DB
}

// Create сохраняет заказ и его позиции атомарно.
func (r *orderRepository) Create(ctx context.Context, order domain.NewOrder) (created domain.Order, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q := r.q
	if r.db != nil {
		var tx *sql.Tx
		tx, err = r.db.BeginTx(ctx, nil)
		if err != nil {
			return domain.Order{}, fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
				return
			}
			if err = tx.Commit(); err != nil {
				created = domain.Order{}
				err = fmt.Errorf("commit create order: %w", err)
			}
		}()
		q = tx
	}

	now := time.Now().UTC()
	created = domain.Order{
		ID:        uuid.NewString(),
		Customer:  order.Customer,
		Products:  make([]domain.OrderLineItem, 0, len(order.Products)),
		Total:     order.Total(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err = q.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, created.ID, created.Customer.ID, created.Total, created.CreatedAt, created.UpdatedAt); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Products {
		item.ID = uuid.NewString()
		item.OrderID = created.ID
		item.CreatedAt = now
		if _, err = q.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, position, price, quantity, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, item.ID, item.OrderID, item.ProductID, i, item.Price, item.Quantity, item.CreatedAt); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		created.Products = append(created.Products, item)
	}

	return created, nil
}

// FindByID возвращает заказ вместе с клиентом и позициями.
func (r *orderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order domain.Order
	err := r.q.QueryRowContext(ctx, `
		SELECT o.id, o.total, o.created_at, o.updated_at,
		       c.id, c.name, c.email, c.created_at, c.updated_at
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1
	`, id).Scan(
		&order.ID, &order.Total, &order.CreatedAt, &order.UpdatedAt,
		&order.Customer.ID, &order.Customer.Name, &order.Customer.Email,
		&order.Customer.CreatedAt, &order.Customer.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.Customer.CreatedAt = order.Customer.CreatedAt.UTC()
	order.Customer.UpdatedAt = order.Customer.UpdatedAt.UTC()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, price, quantity, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Price, &item.Quantity, &item.CreatedAt); err != nil {
			return domain.Order{}, fmt.Errorf("scan order item: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		order.Products = append(order.Products, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("iterate order items: %w", err)
	}

	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
