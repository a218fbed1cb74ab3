// Package httpapi — REST-интерфейс магазина на chi.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

const maxBodyBytes = 1 << 20

// OrderCreator оформляет заказ.
type OrderCreator interface {
	Execute(ctx context.Context, req ordering.CreateOrderRequest) (domain.Order, error)
}

// OrderFinder читает заказ.
type OrderFinder interface {
	Execute(ctx context.Context, orderID string) (domain.Order, error)
}

// Customers — операции каталога клиентов.
type Customers interface {
	CreateCustomer(ctx context.Context, name, email string) (domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
}

// Products — операции каталога товаров.
type Products interface {
	CreateProduct(ctx context.Context, name string, price decimal.Decimal, quantity int64) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

// Handler обслуживает REST API.
type Handler struct {
	createOrder OrderCreator
	findOrder   OrderFinder
	customers   Customers
	products    Products
	logger      *log.Entry
}

// NewHandler создаёт обработчик REST API.
func NewHandler(createOrder OrderCreator, findOrder OrderFinder, customers Customers, products Products, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		createOrder: createOrder,
		findOrder:   findOrder,
		customers:   customers,
		products:    products,
		logger:      logger,
	}
}

func (h *Handler) postCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.customers.CreateCustomer(r.Context(), req.Name, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(customer))
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customers.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

func (h *Handler) postProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	product, err := h.products.CreateProduct(r.Context(), req.Name, req.Price, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) postOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.createOrder.Execute(r.Context(), ordering.CreateOrderRequest{
		CustomerID: req.CustomerID,
		Products:   req.items(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/orders/"+order.ID)
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.findOrder.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	return nil
}
