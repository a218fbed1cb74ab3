package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// OutboxRepository — in-memory хранилище transactional outbox.
type OutboxRepository struct {
	scope scope
}

// Enqueue сохраняет событие со статусом `pending`.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	err := r.scope.write(func(m mutation) error {
		now := time.Now().UTC()
		m.putOutbox(outboxRecord{
			msg:       msg,
			seq:       m.nextOutboxSeq(),
			status:    outboxStatusPending,
			createdAt: now,
			updatedAt: now,
		})
		return nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений `pending` в порядке постановки.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var result []domain.OutboxMessage
	err := r.scope.read(func(d *dataset) error {
		pending := pendingRecords(d)
		if len(pending) > limit {
			pending = pending[:limit]
		}
		result = make([]domain.OutboxMessage, 0, len(pending))
		for _, rec := range pending {
			result = append(result, rec.msg)
		}
		return nil
	})
	return result, err
}

// Stats возвращает размер backlog и время самого старого события.
func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.scope.read(func(d *dataset) error {
		pending := pendingRecords(d)
		stats.PendingCount = len(pending)
		if len(pending) > 0 {
			stats.OldestPendingAt = pending[0].createdAt
		}
		return nil
	})
	return stats, err
}

// MarkSent удаляет доставленное событие: историю отправок in-memory хранилище не ведёт.
func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.scope.write(func(m mutation) error {
		if _, ok := m.outbox[id]; !ok {
			return domain.ErrOutboxPublish
		}
		m.deleteOutbox(id)
		return nil
	})
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.setStatus(id, outboxStatusFailed)
}

func (r *OutboxRepository) setStatus(id, status string) error {
	return r.scope.write(func(m mutation) error {
		rec, ok := m.outbox[id]
		if !ok {
			return domain.ErrOutboxPublish
		}
		rec.status = status
		rec.attemptCnt++
		rec.updatedAt = time.Now().UTC()
		m.putOutbox(rec)
		return nil
	})
}

// AllPending возвращает все сообщения `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	msgs, _ := r.PullPending(context.Background(), int(^uint(0)>>1))
	return msgs
}

func pendingRecords(d *dataset) []outboxRecord {
	pending := make([]outboxRecord, 0, len(d.outbox))
	for _, rec := range d.outbox {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
