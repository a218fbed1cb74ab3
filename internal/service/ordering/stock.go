package ordering

import "github.com/vladislavdragonenkov/storefront/internal/domain"

// stockPlan — результат сверки запрошенных позиций с найденными товарами.
type stockPlan struct {
	updates    []domain.StockUpdate
	items      []domain.OrderLineItem
	outOfStock int
}

// planStock сопоставляет каждому найденному товару первую позицию запроса
// с тем же id. Остальные дубли игнорируются.
func planStock(found []domain.Product, requested []domain.OrderItemRequest) stockPlan {
	plan := stockPlan{
		updates: make([]domain.StockUpdate, 0, len(found)),
		items:   make([]domain.OrderLineItem, 0, len(found)),
	}
	for _, product := range found {
		req, ok := firstRequestFor(product.ID, requested)
		if !ok {
			continue
		}
		left := product.Quantity - req.Quantity
		if left < 0 {
			plan.outOfStock++
			continue
		}
		plan.updates = append(plan.updates, domain.StockUpdate{ID: product.ID, Quantity: left})
		plan.items = append(plan.items, domain.OrderLineItem{
			ProductID: product.ID,
			Price:     product.Price,
			Quantity:  req.Quantity,
		})
	}
	return plan
}

func firstRequestFor(id string, requested []domain.OrderItemRequest) (domain.OrderItemRequest, bool) {
	for _, req := range requested {
		if req.ID == id {
			return req, true
		}
	}
	return domain.OrderItemRequest{}, false
}

func (p stockPlan) units() int64 {
	var n int64
	for _, item := range p.items {
		n += item.Quantity
	}
	return n
}
