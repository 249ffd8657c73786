package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/KasparTech1/Friday01/internal/inventory/domain"
)

var ErrAlreadyDeducted = errors.New("order already deducted")

// Store keeps the ledger's durable view in process memory. It is used for
// STORAGE=memory and in tests.
type Store struct {
	mu         sync.RWMutex
	parts      map[string]domain.Part
	deductions map[string][]domain.Deduction
}

func NewStore(catalog []domain.Part) *Store {
	parts := make(map[string]domain.Part, len(catalog))
	for _, p := range catalog {
		parts[p.ID] = p
	}
	return &Store{
		parts:      parts,
		deductions: make(map[string][]domain.Deduction),
	}
}

func (s *Store) LoadParts(ctx context.Context) ([]domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Part, 0, len(s.parts))
	for _, p := range s.parts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ApplyDeductions(ctx context.Context, orderID string, deductions []domain.Deduction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if orderID != "" {
		if _, ok := s.deductions[orderID]; ok {
			return ErrAlreadyDeducted
		}
	}
	for _, d := range deductions {
		p, ok := s.parts[d.PartID]
		if !ok {
			return domain.ErrUnknownPart
		}
		if p.QtyOnHand < d.Quantity {
			return domain.ErrInsufficientStock
		}
	}
	for _, d := range deductions {
		p := s.parts[d.PartID]
		p.QtyOnHand -= d.Quantity
		s.parts[d.PartID] = p
	}
	if orderID != "" {
		s.deductions[orderID] = append([]domain.Deduction(nil), deductions...)
	}
	return nil
}

func (s *Store) Restock(ctx context.Context, partID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[partID]
	if !ok {
		return domain.ErrUnknownPart
	}
	p.QtyOnHand += qty
	s.parts[partID] = p
	return nil
}

func (s *Store) HasDeductions(ctx context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.deductions[orderID]
	return ok, nil
}

// Deductions returns what was recorded for the order, for assertions.
func (s *Store) Deductions(orderID string) []domain.Deduction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Deduction(nil), s.deductions[orderID]...)
}
