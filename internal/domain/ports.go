package domain

import "context"

// CustomerRepository описывает хранилище клиентов.
type CustomerRepository interface {
	// Create сохраняет клиента; при занятом email возвращает ErrCustomerEmailTaken.
	Create(ctx context.Context, customer Customer) (Customer, error)
	// FindByID возвращает клиента или ErrCustomerNotFound.
	FindByID(ctx context.Context, id string) (Customer, error)
}

// ProductRepository описывает хранилище товаров и остатков.
type ProductRepository interface {
	// Create сохраняет товар; при занятом имени возвращает ErrProductNameTaken.
	Create(ctx context.Context, product Product) (Product, error)
	// FindByID возвращает товар или ErrProductNotFound.
	FindByID(ctx context.Context, id string) (Product, error)
	// FindAllByID выполняет пакетный поиск. Ненайденные идентификаторы
	// просто отсутствуют в результате, каждый товар возвращается один раз.
	FindAllByID(ctx context.Context, ids []string) ([]Product, error)
	// UpdateQuantity перезаписывает остатки абсолютными значениями одним вызовом.
	UpdateQuantity(ctx context.Context, updates []StockUpdate) error
}

// OrderRepository описывает хранилище заказов.
type OrderRepository interface {
	// Create сохраняет заказ, назначая идентификаторы и временные метки.
	Create(ctx context.Context, order NewOrder) (Order, error)
	// FindByID возвращает заказ с позициями или ErrOrderNotFound.
	FindByID(ctx context.Context, id string) (Order, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// Repositories — набор репозиториев, связанных одной единицей работы.
type Repositories interface {
	Customers() CustomerRepository
	Products() ProductRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
}

// Transactor выполняет fn атомарно: все изменения фиксируются,
// только если fn вернула nil.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
