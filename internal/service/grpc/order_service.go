// Package grpcsvc — gRPC-интерфейс оформления и чтения заказов.
package grpcsvc

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

// OrderCreator оформляет заказ.
type OrderCreator interface {
	Execute(ctx context.Context, req ordering.CreateOrderRequest) (domain.Order, error)
}

// OrderFinder читает заказ.
type OrderFinder interface {
	Execute(ctx context.Context, orderID string) (domain.Order, error)
}

// OrderService реализует OrderServiceServer поверх сервисов заказов.
type OrderService struct {
	create OrderCreator
	find   OrderFinder
	idem   idempotency.Store
	ttl    time.Duration
	logger *log.Entry
}

// Option настраивает OrderService.
type Option func(*OrderService)

// WithIdempotency включает повтор CreateOrder по метаданным idempotency-key.
func WithIdempotency(store idempotency.Store, ttl time.Duration) Option {
	return func(s *OrderService) {
		s.idem = store
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *OrderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(create OrderCreator, find OrderFinder, opts ...Option) *OrderService {
	s := &OrderService{
		create: create,
		find:   find,
		ttl:    24 * time.Hour,
		logger: log.WithField("component", "grpc-order-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type createOrderDocument struct {
	CustomerID string `json:"customer_id"`
	Products   []struct {
		ID       string `json:"id"`
		Quantity int64  `json:"quantity"`
	} `json:"products"`
}

type getOrderDocument struct {
	ID string `json:"id"`
}

type lineItemDocument struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

type customerDocument struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type orderDocument struct {
	ID        string             `json:"id"`
	Customer  customerDocument   `json:"customer"`
	Products  []lineItemDocument `json:"products"`
	Total     decimal.Decimal    `json:"total"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// CreateOrder оформляет заказ.
func (s *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return s.withIdempotency(ctx, methodCreateOrder, req, func(ctx context.Context) (*structpb.Struct, error) {
		var doc createOrderDocument
		if err := decodeStruct(req, &doc); err != nil {
			return nil, err
		}

		items := make([]domain.OrderItemRequest, 0, len(doc.Products))
		for _, p := range doc.Products {
			items = append(items, domain.OrderItemRequest{ID: p.ID, Quantity: p.Quantity})
		}
		order, err := s.create.Execute(ctx, ordering.CreateOrderRequest{
			CustomerID: doc.CustomerID,
			Products:   items,
		})
		if err != nil {
			return nil, s.fail(err, "CreateOrder")
		}
		return encodeOrder(order)
	})
}

// GetOrder возвращает заказ по id.
func (s *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	var doc getOrderDocument
	if err := decodeStruct(req, &doc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.ID) == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	order, err := s.find.Execute(ctx, doc.ID)
	if err != nil {
		return nil, s.fail(err, "GetOrder")
	}
	return encodeOrder(order)
}

func (s *OrderService) fail(err error, operation string) error {
	st := status.Convert(toStatus(err))
	if st.Code() == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("grpc request failed")
	}
	return st.Err()
}

func decodeStruct(in *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "request is not a valid document")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encodeOrder(order domain.Order) (*structpb.Struct, error) {
	doc := orderDocument{
		ID: order.ID,
		Customer: customerDocument{
			ID:        order.Customer.ID,
			Name:      order.Customer.Name,
			Email:     order.Customer.Email,
			CreatedAt: order.Customer.CreatedAt,
			UpdatedAt: order.Customer.UpdatedAt,
		},
		Products:  make([]lineItemDocument, 0, len(order.Products)),
		Total:     order.Total,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	for _, item := range order.Products {
		doc.Products = append(doc.Products, lineItemDocument{
			ID:        item.ID,
			OrderID:   item.OrderID,
			ProductID: item.ProductID,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode order")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode order")
	}
	return out, nil
}
