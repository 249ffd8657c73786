package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KasparTech1/Friday01/internal/order/domain"
	"github.com/KasparTech1/Friday01/pkg/tracing"
)

// CommitFailurePolicy decides where an order goes when the stock commit fails.
type CommitFailurePolicy string

const (
	// PolicyRetry returns the order to confirming with its holds intact.
	PolicyRetry CommitFailurePolicy = "retry"
	// PolicyFail releases the holds and moves the order to failed.
	PolicyFail CommitFailurePolicy = "fail"
)

type SubmitResult struct {
	Status      domain.OrderStatus
	SubmittedAt time.Time
}

type orderSlot struct {
	mu     sync.Mutex
	order  domain.Order
	loaded bool
	// dirty marks an in-memory state the repository has not accepted yet.
	dirty bool
}

// Workflow owns order status transitions. Operations on one order are
// serialized by that order's slot lock, which is always taken before any
// reservation or ledger lock.
type Workflow struct {
	log        *slog.Logger
	repo       OrderRepository
	res        Reservations
	deductions DeductionLog
	policy     CommitFailurePolicy
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string

	mu    sync.Mutex
	slots map[string]*orderSlot
}

type Option func(*Workflow)

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(w *Workflow) { w.newID = newID }
}

func WithCommitFailurePolicy(p CommitFailurePolicy) Option {
	return func(w *Workflow) { w.policy = p }
}

func NewWorkflow(log *slog.Logger, repo OrderRepository, res Reservations, deductions DeductionLog, opts ...Option) *Workflow {
	w := &Workflow{
		log:        log,
		repo:       repo,
		res:        res,
		deductions: deductions,
		policy:     PolicyRetry,
		tracer:     otel.Tracer("order-workflow"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		slots:      make(map[string]*orderSlot),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// lock returns the order's slot locked; callers must unlock it.
func (w *Workflow) lock(ctx context.Context, id string) (*orderSlot, error) {
	w.mu.Lock()
	slot, ok := w.slots[id]
	if !ok {
		slot = &orderSlot{}
		w.slots[id] = slot
	}
	w.mu.Unlock()

	slot.mu.Lock()
	if slot.loaded {
		return slot, nil
	}
	o, err := w.repo.Get(ctx, id)
	if err != nil {
		slot.mu.Unlock()
		if errors.Is(err, domain.ErrOrderNotFound) {
			w.mu.Lock()
			if w.slots[id] == slot {
				delete(w.slots, id)
			}
			w.mu.Unlock()
		}
		return nil, err
	}
	slot.order = o
	slot.loaded = true
	return slot, nil
}

// unlock releases the slot and drops it from the table once its order can no
// longer change. A later lookup reloads the order from the repository.
func (w *Workflow) unlock(slot *orderSlot) {
	evict := slot.loaded && !slot.dirty && slot.order.Status.Terminal()
	id := slot.order.ID
	slot.mu.Unlock()
	if !evict {
		return
	}
	w.mu.Lock()
	if w.slots[id] == slot {
		delete(w.slots, id)
	}
	w.mu.Unlock()
}

func (w *Workflow) CreateDraft(ctx context.Context, dealerID, customerPO string) (domain.Order, error) {
	o, err := domain.NewOrder(w.newID(), dealerID, customerPO, w.now())
	if err != nil {
		return domain.Order{}, err
	}
	if err := w.repo.Save(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("save draft: %w", err)
	}
	w.mu.Lock()
	w.slots[o.ID] = &orderSlot{order: o, loaded: true}
	w.mu.Unlock()
	w.log.Info("draft order created", "order_id", o.ID, "dealer_id", dealerID)
	return o.Clone(), nil
}

func (w *Workflow) Get(ctx context.Context, id string) (domain.Order, error) {
	slot, err := w.lock(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer w.unlock(slot)
	return slot.order.Clone(), nil
}

func (w *Workflow) ListByDealer(ctx context.Context, dealerID string) ([]domain.Order, error) {
	return w.repo.ListByDealer(ctx, dealerID)
}

// AddOrUpdateItem reserves qty of the part for the order and returns the
// part's effective quantity afterwards.
func (w *Workflow) AddOrUpdateItem(ctx context.Context, orderID, partID string, qty int64) (int64, error) {
	slot, err := w.lock(ctx, orderID)
	if err != nil {
		return 0, err
	}
	defer w.unlock(slot)

	if err := slot.order.CheckEditable(); err != nil {
		return 0, err
	}
	prior := itemQty(slot.order, partID)

	effective, err := w.res.Reserve(orderID, partID, qty)
	if err != nil {
		return effective, err
	}

	next := slot.order.Clone()
	if err := next.SetItem(partID, qty, w.now()); err != nil {
		return 0, err
	}
	if err := w.repo.Save(ctx, next); err != nil {
		w.undoReserve(orderID, partID, prior)
		return 0, fmt.Errorf("save order: %w", err)
	}
	slot.order = next
	return effective, nil
}

func (w *Workflow) undoReserve(orderID, partID string, prior int64) {
	if prior == 0 {
		w.res.Release(orderID, partID)
		return
	}
	if _, err := w.res.Reserve(orderID, partID, prior); err != nil {
		w.log.Error("restore previous reservation failed", "order_id", orderID, "part_id", partID, "qty", prior, "err", err)
	}
}

func itemQty(o domain.Order, partID string) int64 {
	for _, it := range o.Items {
		if it.PartID == partID {
			return it.Quantity
		}
	}
	return 0
}

func (w *Workflow) RemoveItem(ctx context.Context, orderID, partID string) error {
	slot, err := w.lock(ctx, orderID)
	if err != nil {
		return err
	}
	defer w.unlock(slot)

	next := slot.order.Clone()
	if err := next.RemoveItem(partID, w.now()); err != nil {
		return err
	}
	prior := itemQty(slot.order, partID)
	if prior == 0 {
		w.res.Release(orderID, partID)
		return nil
	}
	if err := w.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	w.res.Release(orderID, partID)
	slot.order = next
	return nil
}

func (w *Workflow) Confirm(ctx context.Context, orderID string) (domain.Order, error) {
	slot, err := w.lock(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer w.unlock(slot)

	next := slot.order.Clone()
	changed, err := next.Confirm(w.now())
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return slot.order.Clone(), nil
	}
	if err := w.repo.Save(ctx, next); err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}
	slot.order = next
	return next.Clone(), nil
}

func (w *Workflow) CancelConfirm(ctx context.Context, orderID string) (domain.Order, error) {
	slot, err := w.lock(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer w.unlock(slot)

	next := slot.order.Clone()
	if err := next.CancelConfirm(w.now()); err != nil {
		return domain.Order{}, err
	}
	if err := w.repo.Save(ctx, next); err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}
	slot.order = next
	return next.Clone(), nil
}

// Submit commits the order's holds to the ledger. Submitting an already
// submitted order returns the stored result without touching the ledger.
func (w *Workflow) Submit(ctx context.Context, orderID string) (SubmitResult, error) {
	ctx, span := w.tracer.Start(ctx, "SubmitOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	slot, err := w.lock(ctx, orderID)
	if err != nil {
		return SubmitResult{}, err
	}
	defer w.unlock(slot)

	if slot.order.Status == domain.StatusSubmitted {
		if slot.dirty {
			if err := w.saveSubmitted(ctx, slot.order); err != nil {
				return submitResult(slot.order), err
			}
			slot.dirty = false
		}
		return submitResult(slot.order), nil
	}
	if err := ctx.Err(); err != nil {
		return SubmitResult{}, err
	}

	next := slot.order.Clone()
	if err := next.BeginSubmit(w.now()); err != nil {
		return SubmitResult{}, err
	}
	if err := w.repo.Save(ctx, next); err != nil {
		return SubmitResult{}, fmt.Errorf("save order: %w", err)
	}
	slot.order = next

	// Once submitting is stored the outcome no longer depends on the caller.
	ctx = context.WithoutCancel(ctx)
	if err := w.res.Commit(ctx, orderID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		w.log.Warn("order commit failed", "order_id", orderID, "policy", w.policy, "err", err)
		return SubmitResult{}, w.handleCommitFailure(ctx, slot, err)
	}

	next = slot.order.Clone()
	if err := next.MarkSubmitted(w.now()); err != nil {
		return SubmitResult{}, err
	}
	slot.order = next
	if err := w.saveSubmitted(ctx, next); err != nil {
		slot.dirty = true
		w.log.Error("submitted order not persisted", "order_id", orderID, "err", err)
		return submitResult(next), err
	}
	w.log.Info("order submitted", "order_id", orderID, "dealer_id", next.DealerID, "lines", len(next.Items))
	return submitResult(next), nil
}

func (w *Workflow) handleCommitFailure(ctx context.Context, slot *orderSlot, cause error) error {
	next := slot.order.Clone()
	policy := w.policy
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		policy = PolicyRetry
	}
	switch policy {
	case PolicyFail:
		w.res.ReleaseAll(next.ID)
		if err := next.Fail(w.now()); err != nil {
			return errors.Join(cause, err)
		}
		payload, err := json.Marshal(domain.OrderFailed{OrderID: next.ID, DealerID: next.DealerID, Reason: cause.Error()})
		if err != nil {
			return errors.Join(cause, err)
		}
		slot.order = next
		if err := w.repo.SaveWithOutbox(ctx, next, domain.EventOrderFailed, payload, w.headers(), w.traceparent(ctx)); err != nil {
			slot.dirty = true
			return errors.Join(cause, fmt.Errorf("save failed order: %w", err))
		}
	default:
		if err := next.RollbackSubmit(w.now()); err != nil {
			return errors.Join(cause, err)
		}
		slot.order = next
		if err := w.repo.Save(ctx, next); err != nil {
			slot.dirty = true
			return errors.Join(cause, fmt.Errorf("save order: %w", err))
		}
	}
	return cause
}

func (w *Workflow) saveSubmitted(ctx context.Context, o domain.Order) error {
	payload, err := json.Marshal(domain.OrderSubmitted{
		OrderID:     o.ID,
		DealerID:    o.DealerID,
		CustomerPO:  o.CustomerPO,
		Items:       o.Items,
		SubmittedAt: *o.SubmittedAt,
	})
	if err != nil {
		return err
	}
	return w.repo.SaveWithOutbox(ctx, o, domain.EventOrderSubmitted, payload, w.headers(), w.traceparent(ctx))
}

func submitResult(o domain.Order) SubmitResult {
	res := SubmitResult{Status: o.Status}
	if o.SubmittedAt != nil {
		res.SubmittedAt = *o.SubmittedAt
	}
	return res
}

func (w *Workflow) Abandon(ctx context.Context, orderID string) (domain.Order, error) {
	slot, err := w.lock(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer w.unlock(slot)

	next := slot.order.Clone()
	if err := next.Abandon(w.now()); err != nil {
		return domain.Order{}, err
	}
	payload, err := json.Marshal(domain.OrderAbandoned{OrderID: next.ID, DealerID: next.DealerID})
	if err != nil {
		return domain.Order{}, err
	}
	if err := w.repo.SaveWithOutbox(ctx, next, domain.EventOrderAbandoned, payload, w.headers(), w.traceparent(ctx)); err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}
	released := w.res.ReleaseAll(orderID)
	slot.order = next
	w.log.Info("order abandoned", "order_id", orderID, "released", released)
	return next.Clone(), nil
}

// Recover rebuilds in-memory state after a restart: interrupted submissions
// are resolved against the ledger's deduction log and holds are restored for
// draft and confirming orders. The ledger must be loaded first.
func (w *Workflow) Recover(ctx context.Context) (int, error) {
	orders, err := w.repo.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open orders: %w", err)
	}
	for _, o := range orders {
		if o.Status == domain.StatusSubmitting {
			deducted, err := w.deductions.WasDeducted(ctx, o.ID)
			if err != nil {
				return 0, fmt.Errorf("check deductions for %s: %w", o.ID, err)
			}
			if deducted {
				if err := o.MarkSubmitted(w.now()); err != nil {
					return 0, err
				}
				if err := w.saveSubmitted(ctx, o); err != nil {
					return 0, fmt.Errorf("save recovered order %s: %w", o.ID, err)
				}
			} else {
				if err := o.RollbackSubmit(w.now()); err != nil {
					return 0, err
				}
				if err := w.repo.Save(ctx, o); err != nil {
					return 0, fmt.Errorf("save recovered order %s: %w", o.ID, err)
				}
			}
			w.log.Info("interrupted submission resolved", "order_id", o.ID, "status", o.Status)
		}
		if o.Status == domain.StatusDraft || o.Status == domain.StatusConfirming {
			for _, it := range o.Items {
				if err := w.res.Restore(o.ID, it.PartID, it.Quantity); err != nil {
					return 0, fmt.Errorf("restore hold %s/%s: %w", o.ID, it.PartID, err)
				}
			}
		}
		if o.Status.Terminal() {
			continue
		}
		w.mu.Lock()
		w.slots[o.ID] = &orderSlot{order: o, loaded: true}
		w.mu.Unlock()
	}
	w.log.Info("orders recovered", "count", len(orders))
	return len(orders), nil
}

func (w *Workflow) headers() map[string]string {
	return map[string]string{"source": "intake-service"}
}

func (w *Workflow) traceparent(ctx context.Context) string {
	return tracing.Traceparent(ctx)
}
