package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KasparTech1/Friday01/internal/order/domain"
	"github.com/KasparTech1/Friday01/pkg/outbox"
)

// Repository keeps orders and their outbox in process memory. It implements
// both the workflow's OrderRepository and outbox.Store.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	events []outbox.Event
	nextID int64
}

func NewRepository() *Repository {
	return &Repository{orders: make(map[string]domain.Order)}
}

func (r *Repository) Save(ctx context.Context, o domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o.Clone()
	r.nextID++
	r.events = append(r.events, outbox.Event{
		ID:            r.nextID,
		AggregateType: "order",
		AggregateID:   o.ID,
		Type:          eventType,
		Payload:       append([]byte(nil), payload...),
		Headers:       headers,
		Traceparent:   traceparent,
		CreatedAt:     time.Now().UTC(),
		Status:        outbox.StatusPending,
	})
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *Repository) ListByDealer(ctx context.Context, dealerID string) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.DealerID == dealerID }), nil
}

func (r *Repository) ListOpen(ctx context.Context) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return !o.Status.Terminal() }), nil
}

func (r *Repository) list(keep func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Order
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Repository) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var batch []outbox.Event
	for i := range r.events {
		if len(batch) == batchSize {
			break
		}
		e := &r.events[i]
		if !e.Claimable(now) {
			continue
		}
		e.Status = outbox.StatusInProgress
		e.RelayID = relayID
		e.LeaseUntil = now.Add(lease)
		batch = append(batch, *e)
	}
	return batch, nil
}

func (r *Repository) MarkSent(ctx context.Context, ids []int64) error {
	return r.mark(ids, func(e *outbox.Event) { e.Status = outbox.StatusSent })
}

func (r *Repository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return r.mark([]int64{id}, func(e *outbox.Event) {
		e.Status = outbox.StatusFailed
		e.RetryCount++
		msg := errMsg
		e.LastError = &msg
	})
}

func (r *Repository) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	until := time.Now().Add(lease)
	return r.mark(ids, func(e *outbox.Event) {
		if e.RelayID == relayID && e.Status == outbox.StatusInProgress {
			e.LeaseUntil = until
		}
	})
}

func (r *Repository) mark(ids []int64, fn func(*outbox.Event)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range r.events {
		if _, ok := want[r.events[i].ID]; ok {
			fn(&r.events[i])
		}
	}
	return nil
}

// Events returns a copy of the outbox, for assertions.
func (r *Repository) Events() []outbox.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]outbox.Event(nil), r.events...)
}
