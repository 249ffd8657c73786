package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KasparTech1/Friday01/internal/order/domain"
	"github.com/KasparTech1/Friday01/pkg/outbox"
)

func order(t *testing.T, id, dealer string, at time.Time) domain.Order {
	t.Helper()
	o, err := domain.NewOrder(id, dealer, "PO", at)
	require.NoError(t, err)
	return o
}

func TestRepository_ListOpenAndByDealer(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a := order(t, "b", "D-1", t0)
	b := order(t, "a", "D-1", t0)
	c := order(t, "c", "D-2", t0.Add(time.Minute))
	c.Status = domain.StatusAbandoned
	for _, o := range []domain.Order{a, b, c} {
		require.NoError(t, r.Save(ctx, o))
	}

	byDealer, err := r.ListByDealer(ctx, "D-1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, []string{byDealer[0].ID, byDealer[1].ID})

	open, err := r.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)

	_, err = r.Get(ctx, "zzz")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRepository_OutboxLease(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	o := order(t, "o-1", "D-1", time.Now())
	require.NoError(t, r.SaveWithOutbox(ctx, o, domain.EventOrderSubmitted, []byte(`{}`), nil, ""))
	require.NoError(t, r.SaveWithOutbox(ctx, o, domain.EventOrderAbandoned, []byte(`{}`), nil, ""))

	batch, err := r.LockBatch(ctx, "relay-a", 10, time.Hour)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	// Leased events are not handed to a second relay.
	other, err := r.LockBatch(ctx, "relay-b", 10, time.Hour)
	require.NoError(t, err)
	require.Empty(t, other)

	require.NoError(t, r.MarkSent(ctx, []int64{batch[0].ID}))
	// An expired lease is reclaimed.
	require.NoError(t, r.ExtendLease(ctx, "relay-a", []int64{batch[1].ID}, -time.Second))
	other, err = r.LockBatch(ctx, "relay-b", 10, time.Hour)
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, batch[1].ID, other[0].ID)

	require.NoError(t, r.MarkFailed(ctx, other[0].ID, "too large"))
	events := r.Events()
	require.Equal(t, outbox.StatusSent, events[0].Status)
	require.Equal(t, outbox.StatusFailed, events[1].Status)
	require.Equal(t, 1, events[1].RetryCount)
}
