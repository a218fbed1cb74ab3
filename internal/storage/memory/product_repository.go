package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	scope scope
}

// Create сохраняет товар, если имя ещё не занято.
func (r *productRepository) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	err := r.scope.write(func(m mutation) error {
		for _, existing := range m.products {
			if existing.Name == product.Name {
				return domain.ErrProductNameTaken
			}
		}
		if product.ID == "" {
			product.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		product.CreatedAt = now
		product.UpdatedAt = now
		m.putProduct(product)
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// FindByID возвращает товар или ErrProductNotFound.
func (r *productRepository) FindByID(_ context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.scope.read(func(d *dataset) error {
		found, ok := d.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = found
		return nil
	})
	return product, err
}

// FindAllByID возвращает найденные товары в порядке первого упоминания в ids.
func (r *productRepository) FindAllByID(_ context.Context, ids []string) ([]domain.Product, error) {
	result := make([]domain.Product, 0, len(ids))
	err := r.scope.read(func(d *dataset) error {
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if product, ok := d.products[id]; ok {
				result = append(result, product)
			}
		}
		return nil
	})
	return result, err
}

// UpdateQuantity применяет все обновления или ни одного.
func (r *productRepository) UpdateQuantity(_ context.Context, updates []domain.StockUpdate) error {
	return r.scope.write(func(m mutation) error {
		for _, update := range updates {
			if _, ok := m.products[update.ID]; !ok {
				return fmt.Errorf("update quantity of %s: %w", update.ID, domain.ErrProductNotFound)
			}
		}
		now := time.Now().UTC()
		for _, update := range updates {
			product := m.products[update.ID]
			product.Quantity = update.Quantity
			product.UpdatedAt = now
			m.putProduct(product)
		}
		return nil
	})
}

var _ domain.ProductRepository = (*productRepository)(nil)
