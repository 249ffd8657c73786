package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func draftWithItem(t *testing.T) Order {
	t.Helper()
	o, err := NewOrder("o-1", "D-1", "PO-1", t0)
	require.NoError(t, err)
	require.NoError(t, o.SetItem("8001", 2, t0))
	return o
}

func TestNewOrder_Validation(t *testing.T) {
	_, err := NewOrder("o-1", "", "PO-1", t0)
	require.ErrorIs(t, err, ErrValidation)
	_, err = NewOrder("o-1", "D-1", "", t0)
	require.ErrorIs(t, err, ErrValidation)

	o, err := NewOrder("o-1", "D-1", "PO-1", t0)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, o.Status)
	require.Empty(t, o.Items)
}

func TestOrder_SetItemReplacesLine(t *testing.T) {
	o := draftWithItem(t)
	require.NoError(t, o.SetItem("8002", 1, t0))
	require.NoError(t, o.SetItem("8001", 7, t0.Add(time.Minute)))

	require.Equal(t, []OrderItem{{PartID: "8001", Quantity: 7}, {PartID: "8002", Quantity: 1}}, o.Items)
	require.Equal(t, t0.Add(time.Minute), o.UpdatedAt)

	require.NoError(t, o.RemoveItem("8001", t0))
	require.NoError(t, o.RemoveItem("8001", t0))
	require.Equal(t, []OrderItem{{PartID: "8002", Quantity: 1}}, o.Items)
}

func TestOrder_ConfirmEmptyOrder(t *testing.T) {
	o, err := NewOrder("o-1", "D-1", "PO-1", t0)
	require.NoError(t, err)

	_, err = o.Confirm(t0)
	require.ErrorIs(t, err, ErrEmptyOrder)
	require.Equal(t, StatusDraft, o.Status)

	require.NoError(t, o.SetItem("8001", 1, t0))
	changed, err := o.Confirm(t0)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = o.Confirm(t0)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestOrder_ItemsFrozenOutsideDraft(t *testing.T) {
	o := draftWithItem(t)
	_, err := o.Confirm(t0)
	require.NoError(t, err)

	require.ErrorIs(t, o.SetItem("8002", 1, t0), ErrInvalidState)
	require.ErrorIs(t, o.RemoveItem("8001", t0), ErrInvalidState)
	require.ErrorIs(t, o.CheckEditable(), ErrInvalidState)

	require.NoError(t, o.CancelConfirm(t0))
	require.NoError(t, o.CheckEditable())
}

func TestOrder_SubmitLifecycle(t *testing.T) {
	o := draftWithItem(t)
	require.ErrorIs(t, o.BeginSubmit(t0), ErrInvalidState)

	_, err := o.Confirm(t0)
	require.NoError(t, err)
	require.NoError(t, o.BeginSubmit(t0))
	require.NoError(t, o.RollbackSubmit(t0))
	require.Equal(t, StatusConfirming, o.Status)

	require.NoError(t, o.BeginSubmit(t0))
	at := t0.Add(time.Hour)
	require.NoError(t, o.MarkSubmitted(at))
	require.Equal(t, StatusSubmitted, o.Status)
	require.Equal(t, at, *o.SubmittedAt)

	require.ErrorIs(t, o.Abandon(t0), ErrInvalidState)
	require.ErrorIs(t, o.MarkSubmitted(t0.Add(2*time.Hour)), ErrInvalidState)
	require.Equal(t, at, *o.SubmittedAt)
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{StatusDraft, StatusConfirming, true},
		{StatusDraft, StatusSubmitting, false},
		{StatusConfirming, StatusDraft, true},
		{StatusConfirming, StatusSubmitting, true},
		{StatusSubmitting, StatusSubmitted, true},
		{StatusSubmitting, StatusConfirming, true},
		{StatusSubmitting, StatusAbandoned, false},
		{StatusSubmitted, StatusDraft, false},
		{StatusAbandoned, StatusDraft, false},
		{StatusFailed, StatusConfirming, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			require.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
	require.True(t, StatusSubmitted.Terminal())
	require.True(t, StatusAbandoned.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.False(t, StatusSubmitting.Terminal())
}

func TestOrder_CloneIsDeep(t *testing.T) {
	o := draftWithItem(t)
	at := t0
	o.SubmittedAt = &at

	c := o.Clone()
	c.Items[0].Quantity = 99
	*c.SubmittedAt = t0.Add(time.Hour)

	require.Equal(t, int64(2), o.Items[0].Quantity)
	require.Equal(t, t0, *o.SubmittedAt)
}
