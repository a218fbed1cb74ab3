package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func enqueue(t *testing.T, repo domain.OutboxRepository, aggregateID string) domain.OutboxMessage {
	t.Helper()
	msg, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   aggregateID,
		EventType:     domain.EventTypeOrderCreated,
		Payload:       []byte(`{"order_id":"` + aggregateID + `"}`),
	})
	require.NoError(t, err)
	return msg
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	repo := memory.NewStore().Outbox()
	enqueue(t, repo, "order-1")
	enqueue(t, repo, "order-2")
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))

	require.Equal(t, 2, worker.ProcessOnce(context.Background()))
	require.Equal(t, 2, publisher.calls())
	require.Empty(t, repo.AllPending())
	require.Equal(t, []string{"order-1", "order-2"}, publisher.aggregateIDs())
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	repo := memory.NewStore().Outbox()
	original := enqueue(t, repo, "order-2")
	publisher := &stubPublisher{err: errors.New("broker down")}
	dlq := &stubPublisher{}
	reg := prometheus.NewRegistry()

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
		WithMetrics(metrics.NewOutboxMetrics(reg)),
	)

	require.Zero(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
	require.Equal(t, 1, dlq.calls())
	require.Empty(t, repo.AllPending())

	dead := dlq.last()
	require.Equal(t, original.ID, dead.ID)
	var envelope dlqEnvelope
	require.NoError(t, json.Unmarshal(dead.Payload, &envelope))
	require.Equal(t, original.ID, envelope.OutboxID)
	require.Contains(t, envelope.PublishError, "broker down")
	require.JSONEq(t, string(original.Payload), string(envelope.Payload))

	families, err := reg.Gather()
	require.NoError(t, err)
	results := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "storefront_outbox_publish_attempts_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			results[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, map[string]float64{"retry_error": 3, "failed": 1}, results)
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	repo := memory.NewStore().Outbox()
	enqueue(t, repo, "order-3")
	publisher := &stubPublisher{sequence: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	require.Equal(t, 1, worker.ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
	require.Empty(t, repo.AllPending())
}

func TestWorker_ProcessOnce_RespectsBatchSize(t *testing.T) {
	repo := memory.NewStore().Outbox()
	for _, id := range []string{"a", "b", "c"} {
		enqueue(t, repo, id)
	}
	worker := NewWorker(repo, &stubPublisher{}, WithBatchSize(2))

	require.Equal(t, 2, worker.ProcessOnce(context.Background()))
	require.Len(t, repo.AllPending(), 1)
}

func TestWorker_ProcessOnce_StopsOnCancelledContextDuringBackoff(t *testing.T) {
	repo := memory.NewStore().Outbox()
	enqueue(t, repo, "order-4")
	publisher := &stubPublisher{err: errors.New("broker down")}
	worker := NewWorker(repo, publisher, WithRetryBaseDelay(time.Hour), WithMaxAttempts(5))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.Zero(t, worker.ProcessOnce(ctx))
	require.Equal(t, 1, publisher.calls())
	require.Len(t, repo.AllPending(), 1, "message must stay pending for the next run")
}

func TestWorker_Backoff(t *testing.T) {
	worker := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))

	require.Equal(t, 10*time.Millisecond, worker.backoff(1))
	require.Equal(t, 20*time.Millisecond, worker.backoff(2))
	require.Equal(t, 80*time.Millisecond, worker.backoff(4))
	require.Equal(t, maxRetryDelay, worker.backoff(64))

	require.Zero(t, NewWorker(nil, nil, WithRetryBaseDelay(0)).backoff(3))
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	repo := memory.NewStore().Outbox()
	publisher := &stubPublisher{}
	worker := NewWorker(repo, publisher, WithPollInterval(5*time.Millisecond), WithRetryBaseDelay(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	enqueue(t, repo, "late")
	require.Eventually(t, func() bool { return publisher.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	NewWorker(memory.NewStore().Outbox(), nil).Run(context.Background())
}

type stubPublisher struct {
	mu        sync.Mutex
	err       error
	sequence  []error
	published []domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, msg)
	if len(s.sequence) > 0 {
		err := s.sequence[0]
		s.sequence = s.sequence[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

func (s *stubPublisher) aggregateIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.published))
	for _, msg := range s.published {
		ids = append(ids, msg.AggregateID)
	}
	return ids
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)
