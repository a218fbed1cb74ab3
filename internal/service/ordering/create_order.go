package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CreateOrderRequest — входные данные оформления заказа.
type CreateOrderRequest struct {
	CustomerID string
	Products   []domain.OrderItemRequest
}

// CreateOrderService оформляет заказ: проверяет клиента, наличие товаров
// и остатки, списывает остатки и сохраняет заказ одной транзакцией.
type CreateOrderService struct {
	tx domain.Transactor
	options
}

// NewCreateOrderService создаёт сервис оформления заказов.
func NewCreateOrderService(tx domain.Transactor, opts ...Option) *CreateOrderService {
	return &CreateOrderService{
		tx:      tx,
		options: buildOptions("create-order", opts),
	}
}

// Execute оформляет заказ. Бизнес-отказы возвращаются как *domain.OrderError;
// в этом случае ни остатки, ни заказы не меняются.
func (s *CreateOrderService) Execute(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.CreateOrder", trace.WithAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("order.items_requested", len(req.Products)),
	))
	defer span.End()

	done := s.metrics.Started()
	defer done()

	order, units, err := s.execute(ctx, req)
	if err != nil {
		s.recordFailure(span, req, err)
		return domain.Order{}, err
	}

	s.metrics.RecordCreated(units)
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.total", order.Total.String()),
	)
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.Customer.ID,
		"items":       len(order.Products),
		"total":       order.Total.String(),
	}).Info("order created")
	return order, nil
}

func (s *CreateOrderService) execute(ctx context.Context, req CreateOrderRequest) (domain.Order, int64, error) {
	var (
		order domain.Order
		units int64
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		customer, err := repos.Customers().FindByID(ctx, req.CustomerID)
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return domain.NewCustomerNotFoundError()
		}
		if err != nil {
			return fmt.Errorf("find customer: %w", err)
		}
		// Состав заказа проверяется после клиента: неизвестный клиент важнее пустого списка.
		if err := validateRequest(req); err != nil {
			return err
		}

		ids := make([]string, len(req.Products))
		for i, item := range req.Products {
			ids[i] = item.ID
		}
		found, err := repos.Products().FindAllByID(ctx, ids)
		if err != nil {
			return fmt.Errorf("find products: %w", err)
		}
		if len(found) != len(req.Products) {
			return domain.NewProductsNotFoundError()
		}

		plan := planStock(found, req.Products)
		if plan.outOfStock > 0 {
			return domain.NewInsufficientStockError(plan.outOfStock)
		}

		if err := repos.Products().UpdateQuantity(ctx, plan.updates); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		order, err = repos.Orders().Create(ctx, domain.NewOrder{Customer: customer, Products: plan.items})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		msg, err := orderCreatedMessage(order)
		if err != nil {
			return err
		}
		if _, err := repos.Outbox().Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}

		units = plan.units()
		return nil
	})
	if err != nil {
		return domain.Order{}, 0, err
	}
	return order, units, nil
}

func validateRequest(req CreateOrderRequest) error {
	if len(req.Products) == 0 {
		return domain.NewInvalidOrderRequestError("Order must contain at least one product.")
	}
	for _, item := range req.Products {
		if item.Quantity <= 0 {
			return domain.NewInvalidOrderRequestError("Product quantity must be greater than zero.")
		}
	}
	return nil
}

func (s *CreateOrderService) recordFailure(span trace.Span, req CreateOrderRequest, err error) {
	entry := s.logger.WithField("customer_id", req.CustomerID).WithError(err)
	if orderErr, ok := domain.AsOrderError(err); ok {
		s.metrics.RecordRejected(string(orderErr.Kind))
		span.SetAttributes(attribute.String("order.rejection", string(orderErr.Kind)))
		span.SetStatus(codes.Error, orderErr.Message)
		entry.WithField("kind", orderErr.Kind).Info("order rejected")
		return
	}
	s.metrics.RecordFailed()
	span.RecordError(err)
	span.SetStatus(codes.Error, "order creation failed")
	entry.Error("order creation failed")
}

// OrderCreatedEvent — полезная нагрузка события order.created.
type OrderCreatedEvent struct {
	OrderID    string             `json:"order_id"`
	CustomerID string             `json:"customer_id"`
	Total      string             `json:"total"`
	Items      []OrderCreatedItem `json:"items"`
	CreatedAt  time.Time          `json:"created_at"`
}

type OrderCreatedItem struct {
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Quantity  int64  `json:"quantity"`
}

func orderCreatedMessage(order domain.Order) (domain.OutboxMessage, error) {
	event := OrderCreatedEvent{
		OrderID:    order.ID,
		CustomerID: order.Customer.ID,
		Total:      order.Total.String(),
		Items:      make([]OrderCreatedItem, 0, len(order.Products)),
		CreatedAt:  order.CreatedAt,
	}
	for _, item := range order.Products {
		event.Items = append(event.Items, OrderCreatedItem{
			ProductID: item.ProductID,
			Price:     item.Price.String(),
			Quantity:  item.Quantity,
		})
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal order event: %w", err)
	}
	return domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventTypeOrderCreated,
		Payload:       payload,
	}, nil
}
