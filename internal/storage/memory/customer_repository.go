package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepository struct {
	scope scope
}

// Create сохраняет клиента, если email ещё не занят.
func (r *customerRepository) Create(_ context.Context, customer domain.Customer) (domain.Customer, error) {
	err := r.scope.write(func(m mutation) error {
		for _, existing := range m.customers {
			if strings.EqualFold(existing.Email, customer.Email) {
				return domain.ErrCustomerEmailTaken
			}
		}
		if customer.ID == "" {
			customer.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		customer.CreatedAt = now
		customer.UpdatedAt = now
		m.putCustomer(customer)
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

// FindByID возвращает клиента или ErrCustomerNotFound.
func (r *customerRepository) FindByID(_ context.Context, id string) (domain.Customer, error) {
	var customer domain.Customer
	err := r.scope.read(func(d *dataset) error {
		found, ok := d.customers[id]
		if !ok {
			return domain.ErrCustomerNotFound
		}
		customer = found
		return nil
	})
	return customer, err
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
