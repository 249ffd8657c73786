package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KasparTech1/Friday01/internal/inventory/domain"
	"github.com/KasparTech1/Friday01/internal/inventory/infrastructure/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedger(t *testing.T, parts ...domain.Part) (*Ledger, *memory.Store) {
	t.Helper()
	if len(parts) == 0 {
		parts = domain.DefaultCatalog()
	}
	store := memory.NewStore(parts)
	l := NewLedger(discardLogger(), store)
	require.NoError(t, l.Load(context.Background()))
	return l, store
}

// failingStore rejects every write, simulating an unreachable database.
type failingStore struct {
	*memory.Store
}

var errStoreDown = errors.New("store down")

func (f failingStore) ApplyDeductions(ctx context.Context, orderID string, ds []domain.Deduction) error {
	return errStoreDown
}

func (f failingStore) Restock(ctx context.Context, partID string, qty int64) error {
	return errStoreDown
}
