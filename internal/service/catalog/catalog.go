// Package catalog управляет клиентами и товарами, на которых строится оформление заказа.
package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CustomerService создаёт и читает клиентов.
type CustomerService struct {
	repo   domain.CustomerRepository
	logger *log.Entry
}

// NewCustomerService создаёт сервис клиентов.
func NewCustomerService(repo domain.CustomerRepository, logger *log.Entry) *CustomerService {
	if logger == nil {
		logger = log.WithField("component", "catalog-customers")
	}
	return &CustomerService{repo: repo, logger: logger}
}

// CreateCustomer проверяет поля и сохраняет клиента.
func (s *CustomerService) CreateCustomer(ctx context.Context, name, email string) (domain.Customer, error) {
	customer := domain.Customer{
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
	}
	if err := domain.NewValidationError(customer.Validate()); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.Create(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logger.WithField("customer_id", created.ID).Info("customer created")
	return created, nil
}

// GetCustomer возвращает клиента или domain.ErrCustomerNotFound.
func (s *CustomerService) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return s.repo.FindByID(ctx, id)
}

// ProductService создаёт и читает товары.
type ProductService struct {
	repo   domain.ProductRepository
	logger *log.Entry
}

// NewProductService создаёт сервис товаров.
func NewProductService(repo domain.ProductRepository, logger *log.Entry) *ProductService {
	if logger == nil {
		logger = log.WithField("component", "catalog-products")
	}
	return &ProductService{repo: repo, logger: logger}
}

// CreateProduct проверяет поля и сохраняет товар с начальным остатком.
func (s *ProductService) CreateProduct(ctx context.Context, name string, price decimal.Decimal, quantity int64) (domain.Product, error) {
	product := domain.Product{
		Name:     strings.TrimSpace(name),
		Price:    price,
		Quantity: quantity,
	}
	if err := domain.NewValidationError(product.Validate()); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": created.ID,
		"quantity":   created.Quantity,
	}).Info("product created")
	return created, nil
}

// GetProduct возвращает товар или domain.ErrProductNotFound.
func (s *ProductService) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.FindByID(ctx, id)
}
