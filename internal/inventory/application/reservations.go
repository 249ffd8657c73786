package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/KasparTech1/Friday01/internal/inventory/domain"
)

type holdEntry struct {
	mu       sync.Mutex
	reserved int64
	holds    map[string]int64
}

// ReservationManager owns the transient holds that orders place against the
// ledger. A part's hold entry lock is always taken before the ledger's lock for
// the same part.
type ReservationManager struct {
	log    *slog.Logger
	ledger *Ledger

	// mu guards the two maps only and is never held while acquiring a hold entry lock.
	mu      sync.Mutex
	parts   map[string]*holdEntry
	byOrder map[string]map[string]struct{}
}

func NewReservationManager(log *slog.Logger, ledger *Ledger) *ReservationManager {
	return &ReservationManager{
		log:     log,
		ledger:  ledger,
		parts:   make(map[string]*holdEntry),
		byOrder: make(map[string]map[string]struct{}),
	}
}

// entry returns the hold entry of a catalog part. Unknown parts get no entry.
func (m *ReservationManager) entry(partID string) (*holdEntry, error) {
	if _, err := m.ledger.entry(partID); err != nil {
		return nil, err
	}
	return m.slot(partID), nil
}

func (m *ReservationManager) slot(partID string) *holdEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.parts[partID]
	if !ok {
		e = &holdEntry{holds: make(map[string]int64)}
		m.parts[partID] = e
	}
	return e
}

func (m *ReservationManager) index(orderID, partID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byOrder[orderID]
	if !ok {
		set = make(map[string]struct{})
		m.byOrder[orderID] = set
	}
	set[partID] = struct{}{}
}

func (m *ReservationManager) unindex(orderID, partID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.byOrder[orderID]
	delete(set, partID)
	if len(set) == 0 {
		delete(m.byOrder, orderID)
	}
}

func (m *ReservationManager) orderParts(orderID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.byOrder[orderID]))
	for id := range m.byOrder[orderID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// lockOrder locks every hold entry the order touches in ascending part ID
// order. It retries when the order's part set changed while locking.
func (m *ReservationManager) lockOrder(orderID string) ([]string, []*holdEntry, func()) {
	for {
		ids := m.orderParts(orderID)
		entries := make([]*holdEntry, 0, len(ids))
		for _, id := range ids {
			e := m.slot(id)
			e.mu.Lock()
			entries = append(entries, e)
		}
		unlock := func() {
			for i := len(entries) - 1; i >= 0; i-- {
				entries[i].mu.Unlock()
			}
		}
		if equalIDs(ids, m.orderParts(orderID)) {
			return ids, entries, unlock
		}
		unlock()
	}
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EffectiveQty is the live, lock-protected available-to-promise figure.
func (m *ReservationManager) EffectiveQty(partID string) (int64, error) {
	e, err := m.entry(partID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	onHand, err := m.ledger.GetOnHand(partID)
	if err != nil {
		return 0, err
	}
	return onHand - e.reserved, nil
}

// Reserve sets the order's hold on the part to exactly qty and returns the
// part's effective quantity afterwards.
func (m *ReservationManager) Reserve(orderID, partID string, qty int64) (int64, error) {
	if qty < 1 {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, qty)
	}
	e, err := m.entry(partID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	onHand, err := m.ledger.GetOnHand(partID)
	if err != nil {
		return 0, err
	}
	prior := e.holds[orderID]
	available := onHand - (e.reserved - prior)
	if qty > available {
		return onHand - e.reserved, fmt.Errorf("%w: part %s has %d available, requested %d",
			domain.ErrInsufficientAvailability, partID, available, qty)
	}

	e.holds[orderID] = qty
	e.reserved += qty - prior
	if prior == 0 {
		m.index(orderID, partID)
	}
	m.log.Debug("reservation set", "order_id", orderID, "part_id", partID, "qty", qty, "prior", prior)
	return onHand - e.reserved, nil
}

// Restore recreates a hold during recovery without the availability check.
func (m *ReservationManager) Restore(orderID, partID string, qty int64) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, qty)
	}
	e, err := m.entry(partID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prior := e.holds[orderID]
	e.holds[orderID] = qty
	e.reserved += qty - prior
	if prior == 0 {
		m.index(orderID, partID)
	}
	return nil
}

// Release drops the order's hold on the part. Releasing a missing hold is a no-op.
func (m *ReservationManager) Release(orderID, partID string) {
	m.mu.Lock()
	e, ok := m.parts[partID]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prior, ok := e.holds[orderID]
	if !ok {
		return
	}
	delete(e.holds, orderID)
	e.reserved -= prior
	m.unindex(orderID, partID)
	m.log.Debug("reservation released", "order_id", orderID, "part_id", partID, "qty", prior)
}

// ReleaseAll drops every hold of the order and returns how many were removed.
func (m *ReservationManager) ReleaseAll(orderID string) int {
	ids, entries, unlock := m.lockOrder(orderID)
	defer unlock()
	for i, e := range entries {
		qty := e.holds[orderID]
		delete(e.holds, orderID)
		e.reserved -= qty
		m.unindex(orderID, ids[i])
	}
	if len(ids) > 0 {
		m.log.Debug("reservations released", "order_id", orderID, "parts", len(ids))
	}
	return len(ids)
}

// Holds returns a copy of the order's holds keyed by part ID.
func (m *ReservationManager) Holds(orderID string) map[string]int64 {
	ids, entries, unlock := m.lockOrder(orderID)
	defer unlock()
	out := make(map[string]int64, len(ids))
	for i, e := range entries {
		out[ids[i]] = e.holds[orderID]
	}
	return out
}

// Commit converts every hold of the order into a permanent ledger deduction.
// On failure the holds are left untouched and the error matches ErrCommitFailed.
func (m *ReservationManager) Commit(ctx context.Context, orderID string) error {
	ids, entries, unlock := m.lockOrder(orderID)
	defer unlock()
	if len(ids) == 0 {
		return nil
	}

	deductions := make([]domain.Deduction, 0, len(ids))
	for i, e := range entries {
		deductions = append(deductions, domain.Deduction{PartID: ids[i], Quantity: e.holds[orderID]})
	}
	if err := m.ledger.DeductBatch(ctx, orderID, deductions); err != nil {
		return fmt.Errorf("%w: order %s: %w", domain.ErrCommitFailed, orderID, err)
	}

	for i, e := range entries {
		e.reserved -= e.holds[orderID]
		delete(e.holds, orderID)
		m.unindex(orderID, ids[i])
	}
	m.log.Info("reservations committed", "order_id", orderID, "parts", len(ids))
	return nil
}

// Snapshot builds the display projection. Entries are read one part at a time,
// so figures across parts may be momentarily inconsistent.
func (m *ReservationManager) Snapshot() []domain.Availability {
	parts := m.ledger.Parts()
	out := make([]domain.Availability, 0, len(parts))
	for _, p := range parts {
		e := m.slot(p.ID)
		e.mu.Lock()
		reserved := e.reserved
		onHand, err := m.ledger.GetOnHand(p.ID)
		e.mu.Unlock()
		if err == nil {
			p.QtyOnHand = onHand
		}
		out = append(out, domain.Availability{
			Part:         p,
			Reserved:     reserved,
			EffectiveQty: p.QtyOnHand - reserved,
		})
	}
	return out
}
