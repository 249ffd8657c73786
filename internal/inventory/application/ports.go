package application

import (
	"context"

	"github.com/KasparTech1/Friday01/internal/inventory/domain"
)

// LedgerStore persists on-hand counters. The ledger calls it while holding
// the per-part locks, so implementations must not call back into the ledger.
type LedgerStore interface {
	LoadParts(ctx context.Context) ([]domain.Part, error)
	ApplyDeductions(ctx context.Context, orderID string, deductions []domain.Deduction) error
	Restock(ctx context.Context, partID string, qty int64) error
	HasDeductions(ctx context.Context, orderID string) (bool, error)
}
