package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/KasparTech1/Friday01/internal/inventory/domain"
)

type stockEntry struct {
	mu   sync.Mutex
	part domain.Part
}

// Ledger is the authoritative owner of qtyOnHand. Every part has its own
// lock; operations spanning several parts take the locks in ascending part ID
// order.
type Ledger struct {
	log   *slog.Logger
	store LedgerStore

	mu    sync.RWMutex
	parts map[string]*stockEntry
}

func NewLedger(log *slog.Logger, store LedgerStore) *Ledger {
	return &Ledger{
		log:   log,
		store: store,
		parts: make(map[string]*stockEntry),
	}
}

// Load replaces the in-memory counters with the store's contents.
func (l *Ledger) Load(ctx context.Context) error {
	parts, err := l.store.LoadParts(ctx)
	if err != nil {
		return fmt.Errorf("load parts: %w", err)
	}
	entries := make(map[string]*stockEntry, len(parts))
	for _, p := range parts {
		entries[p.ID] = &stockEntry{part: p}
	}
	l.mu.Lock()
	l.parts = entries
	l.mu.Unlock()
	l.log.Info("ledger loaded", "parts", len(parts))
	return nil
}

func (l *Ledger) entry(partID string) (*stockEntry, error) {
	l.mu.RLock()
	e, ok := l.parts[partID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPart, partID)
	}
	return e, nil
}

func (l *Ledger) GetOnHand(partID string) (int64, error) {
	e, err := l.entry(partID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.part.QtyOnHand, nil
}

func (l *Ledger) Part(partID string) (domain.Part, error) {
	e, err := l.entry(partID)
	if err != nil {
		return domain.Part{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.part, nil
}

// Parts returns a copy of the catalog sorted by part ID.
func (l *Ledger) Parts() []domain.Part {
	l.mu.RLock()
	entries := make([]*stockEntry, 0, len(l.parts))
	for _, e := range l.parts {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	parts := make([]domain.Part, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		parts = append(parts, e.part)
		e.mu.Unlock()
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].ID < parts[j].ID })
	return parts
}

func (l *Ledger) Deduct(ctx context.Context, partID string, qty int64) error {
	return l.DeductBatch(ctx, "", []domain.Deduction{{PartID: partID, Quantity: qty}})
}

// DeductBatch applies every deduction or none of them. orderID is recorded by
// the store so a submission is deducted at most once; it is empty for manual
// corrections.
func (l *Ledger) DeductBatch(ctx context.Context, orderID string, deductions []domain.Deduction) error {
	merged := make(map[string]int64, len(deductions))
	for _, d := range deductions {
		if d.Quantity < 1 {
			return fmt.Errorf("%w: %d for part %s", domain.ErrInvalidQuantity, d.Quantity, d.PartID)
		}
		merged[d.PartID] += d.Quantity
	}
	if len(merged) == 0 {
		return nil
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]*stockEntry, 0, len(ids))
	for _, id := range ids {
		e, err := l.entry(id)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	for _, e := range entries {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	ordered := make([]domain.Deduction, 0, len(ids))
	for i, e := range entries {
		qty := merged[ids[i]]
		if qty > e.part.QtyOnHand {
			return fmt.Errorf("%w: part %s has %d, need %d", domain.ErrInsufficientStock, e.part.ID, e.part.QtyOnHand, qty)
		}
		ordered = append(ordered, domain.Deduction{PartID: ids[i], Quantity: qty})
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.store.ApplyDeductions(ctx, orderID, ordered); err != nil {
		return fmt.Errorf("persist deductions: %w", err)
	}

	for i, e := range entries {
		e.part.QtyOnHand -= ordered[i].Quantity
	}
	l.log.Debug("stock deducted", "order_id", orderID, "lines", len(ordered))
	return nil
}

func (l *Ledger) Restock(ctx context.Context, partID string, qty int64) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, qty)
	}
	e, err := l.entry(partID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := l.store.Restock(ctx, partID, qty); err != nil {
		return fmt.Errorf("persist restock: %w", err)
	}
	e.part.QtyOnHand += qty
	l.log.Info("part restocked", "part_id", partID, "qty", qty, "on_hand", e.part.QtyOnHand)
	return nil
}

// WasDeducted reports whether the store recorded a committed deduction for the order.
func (l *Ledger) WasDeducted(ctx context.Context, orderID string) (bool, error) {
	return l.store.HasDeductions(ctx, orderID)
}
