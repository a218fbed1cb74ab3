package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// dataset — всё состояние in-memory хранилища.
type dataset struct {
	customers map[string]domain.Customer
	products  map[string]domain.Product
	orders    map[string]domain.Order
	outbox    map[string]outboxRecord
	outboxSeq int64
}

func newDataset() *dataset {
	return &dataset{
		customers: make(map[string]domain.Customer),
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		outbox:    make(map[string]outboxRecord),
	}
}

// undoLog хранит обратные операции для записей, сделанных в транзакции.
type undoLog struct {
	steps []func()
}

func (l *undoLog) push(step func()) {
	l.steps = append(l.steps, step)
}

// rollback отменяет записи в обратном порядке.
func (l *undoLog) rollback() {
	for i := len(l.steps) - 1; i >= 0; i-- {
		l.steps[i]()
	}
	l.steps = nil
}

// mutation — доступ репозиториев к данным на запись. Каждое изменение
// запоминает предыдущее значение в undo.
type mutation struct {
	*dataset
	undo *undoLog
}

func put[V any](undo *undoLog, m map[string]V, key string, value V) {
	prev, existed := m[key]
	undo.push(func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	m[key] = value
}

func remove[V any](undo *undoLog, m map[string]V, key string) {
	prev, existed := m[key]
	if !existed {
		return
	}
	undo.push(func() { m[key] = prev })
	delete(m, key)
}

func (m mutation) putCustomer(c domain.Customer) { put(m.undo, m.customers, c.ID, c) }
func (m mutation) putProduct(p domain.Product)   { put(m.undo, m.products, p.ID, p) }
func (m mutation) putOrder(o domain.Order)       { put(m.undo, m.orders, o.ID, o) }
func (m mutation) putOutbox(rec outboxRecord)    { put(m.undo, m.outbox, rec.msg.ID, rec) }
func (m mutation) deleteOutbox(id string)        { remove(m.undo, m.outbox, id) }

func (m mutation) nextOutboxSeq() int64 {
	prev := m.outboxSeq
	d := m.dataset
	m.undo.push(func() { d.outboxSeq = prev })
	d.outboxSeq++
	return d.outboxSeq
}

// Store — in-memory хранилище для локальной разработки и тестов.
// Транзакции сериализуются: WithinTx держит эксклюзивную блокировку,
// пишет прямо в данные и при ошибке откатывает записи по журналу.
type Store struct {
	mu   sync.RWMutex
	data *dataset
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{data: newDataset()}
}

// scope определяет, с какими данными работает репозиторий: вне транзакции
// каждый вызов берёт блокировку Store, внутри неё блокировка уже взята,
// а записи попадают в журнал транзакции.
type scope struct {
	store *Store
	tx    *undoLog
}

func (s scope) read(fn func(d *dataset) error) error {
	if s.tx != nil {
		return fn(s.store.data)
	}
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return fn(s.store.data)
}

// write применяет fn целиком или не применяет: ошибка fn откатывает её записи.
func (s scope) write(fn func(m mutation) error) error {
	if s.tx != nil {
		return fn(mutation{dataset: s.store.data, undo: s.tx})
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	undo := &undoLog{}
	if err := fn(mutation{dataset: s.store.data, undo: undo}); err != nil {
		undo.rollback()
		return err
	}
	return nil
}

func (s *Store) root() scope {
	return scope{store: s}
}

// Customers возвращает репозиторий клиентов вне транзакции.
func (s *Store) Customers() domain.CustomerRepository {
	return &customerRepository{scope: s.root()}
}

// Products возвращает репозиторий товаров вне транзакции.
func (s *Store) Products() domain.ProductRepository {
	return &productRepository{scope: s.root()}
}

// Orders возвращает репозиторий заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepository{scope: s.root()}
}

// Outbox возвращает outbox-репозиторий вне транзакции.
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{scope: s.root()}
}

// WithinTx выполняет fn под эксклюзивной блокировкой. Если fn вернула ошибку
// или запаниковала, все её записи откатываются. Стоимость транзакции зависит
// только от числа её записей, а не от объёма хранилища.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	undo := &undoLog{}
	committed := false
	defer func() {
		if !committed {
			undo.rollback()
		}
	}()

	if err := fn(ctx, txRepositories{scope: scope{store: s, tx: undo}}); err != nil {
		return err
	}
	committed = true
	return nil
}

type txRepositories struct {
	scope scope
}

func (r txRepositories) Customers() domain.CustomerRepository {
	return &customerRepository{scope: r.scope}
}

func (r txRepositories) Products() domain.ProductRepository {
	return &productRepository{scope: r.scope}
}

func (r txRepositories) Orders() domain.OrderRepository {
	return &orderRepository{scope: r.scope}
}

func (r txRepositories) Outbox() domain.OutboxRepository {
	return &OutboxRepository{scope: r.scope}
}

var _ domain.Transactor = (*Store)(nil)
