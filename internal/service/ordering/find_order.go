package ordering

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FindOrderService возвращает заказ по идентификатору.
type FindOrderService struct {
	orders domain.OrderRepository
	options
}

// NewFindOrderService создаёт сервис чтения заказов.
func NewFindOrderService(orders domain.OrderRepository, opts ...Option) *FindOrderService {
	return &FindOrderService{
		orders:  orders,
		options: buildOptions("find-order", opts),
	}
}

// Execute возвращает заказ или domain.ErrOrderNotFound.
func (s *FindOrderService) Execute(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.FindOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if !domain.IsNotFound(err) {
			span.RecordError(err)
			s.logger.WithError(err).WithField("order_id", orderID).Error("find order failed")
		}
		return domain.Order{}, err
	}
	return order, nil
}
