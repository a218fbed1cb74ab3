package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCustomerNotFound возвращается, если клиент не найден в хранилище.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProductNotFound возвращается, если товар не найден по идентификатору.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductsNotFound — часть запрошенных товаров отсутствует в каталоге.
	ErrProductsNotFound = errors.New("one or more products not found")
	// ErrInsufficientStock — на складе недостаточно товара хотя бы по одной позиции.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidOrderRequest — запрос на создание заказа некорректен (пустой список, qty <= 0).
	ErrInvalidOrderRequest = errors.New("invalid order request")

	// Ошибки валидации каталога.
	ErrCustomerNameRequired    = errors.New("customer name is required")
	ErrCustomerEmailRequired   = errors.New("customer email is required")
	ErrCustomerEmailInvalid    = errors.New("customer email is invalid")
	ErrProductNameRequired     = errors.New("product name is required")
	ErrProductPriceNegative    = errors.New("product price must be non-negative")
	ErrProductPricePrecision   = errors.New("product price must have at most 2 decimal places")
	ErrProductPriceTooLarge    = errors.New("product price must be less than 10000000000")
	ErrProductQuantityNegative = errors.New("product quantity must be non-negative")

	// ErrCustomerEmailTaken — email уже используется другим клиентом.
	ErrCustomerEmailTaken = errors.New("customer email already in use")
	// ErrProductNameTaken — товар с таким именем уже существует.
	ErrProductNameTaken = errors.New("product name already in use")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind классифицирует отказ в создании заказа.
// Перевод в транспортные коды (HTTP/gRPC) выполняет внешний слой.
type ErrorKind string

const (
	ErrorKindInvalidRequest    ErrorKind = "invalid_request"
	ErrorKindCustomerNotFound  ErrorKind = "customer_not_found"
	ErrorKindProductsNotFound  ErrorKind = "products_not_found"
	ErrorKindInsufficientStock ErrorKind = "insufficient_stock"
)

// OrderError — клиентская ошибка операции создания заказа.
type OrderError struct {
	Kind    ErrorKind
	Message string
	// Count заполняется для ErrorKindInsufficientStock: число товаров без остатка.
	Count int
}

func (e *OrderError) Error() string {
	return e.Message
}

// Unwrap позволяет сравнивать ошибку с sentinel-значениями через errors.Is.
func (e *OrderError) Unwrap() error {
	switch e.Kind {
	case ErrorKindCustomerNotFound:
		return ErrCustomerNotFound
	case ErrorKindProductsNotFound:
		return ErrProductsNotFound
	case ErrorKindInsufficientStock:
		return ErrInsufficientStock
	case ErrorKindInvalidRequest:
		return ErrInvalidOrderRequest
	default:
		return nil
	}
}

// NewCustomerNotFoundError создаёт ошибку отсутствующего клиента.
func NewCustomerNotFoundError() *OrderError {
	return &OrderError{Kind: ErrorKindCustomerNotFound, Message: "Customer not found."}
}

// NewProductsNotFoundError создаёт ошибку несовпадения числа найденных товаров.
func NewProductsNotFoundError() *OrderError {
	return &OrderError{Kind: ErrorKindProductsNotFound, Message: "One or more products not found."}
}

// NewInsufficientStockError создаёт ошибку нехватки остатков по count товарам.
func NewInsufficientStockError(count int) *OrderError {
	return &OrderError{
		Kind:    ErrorKindInsufficientStock,
		Message: fmt.Sprintf("%d products with stock not found.", count),
		Count:   count,
	}
}

// NewInvalidOrderRequestError создаёт ошибку некорректного запроса.
func NewInvalidOrderRequestError(message string) *OrderError {
	return &OrderError{Kind: ErrorKindInvalidRequest, Message: message}
}

// AsOrderError извлекает OrderError из цепочки ошибок.
func AsOrderError(err error) (*OrderError, bool) {
	var orderErr *OrderError
	if errors.As(err, &orderErr) {
		return orderErr, true
	}
	return nil, false
}

// ValidationError агрегирует замечания валидации сущности каталога.
type ValidationError struct {
	Problems []error
}

// NewValidationError возвращает nil, если замечаний нет.
func NewValidationError(problems []error) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, problem := range e.Problems {
		parts = append(parts, problem.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// IsConflict проверяет, является ли ошибка нарушением уникальности в каталоге.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCustomerEmailTaken) || errors.Is(err, ErrProductNameTaken)
}

// IsNotFound проверяет, что ошибка означает отсутствие сущности.
// OrderError сюда не относится: это отказ операции, а не поиска.
func IsNotFound(err error) bool {
	if _, ok := AsOrderError(err); ok {
		return false
	}
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}
