package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrInvalidState  = errors.New("invalid state")
	ErrEmptyOrder    = errors.New("empty order")
	ErrOrderNotFound = errors.New("order not found")
)

type OrderStatus string

const (
	StatusDraft      OrderStatus = "draft"
	StatusConfirming OrderStatus = "confirming"
	StatusSubmitting OrderStatus = "submitting"
	StatusSubmitted  OrderStatus = "submitted"
	StatusFailed     OrderStatus = "failed"
	StatusAbandoned  OrderStatus = "abandoned"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusDraft:      {StatusConfirming, StatusFailed, StatusAbandoned},
	StatusConfirming: {StatusDraft, StatusSubmitting, StatusFailed, StatusAbandoned},
	StatusSubmitting: {StatusSubmitted, StatusConfirming, StatusFailed},
}

func (s OrderStatus) Terminal() bool {
	return s == StatusSubmitted || s == StatusFailed || s == StatusAbandoned
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID          string
	DealerID    string
	CustomerPO  string
	Items       []OrderItem
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
}

type OrderItem struct {
	PartID   string
	Quantity int64
}

func NewOrder(id, dealerID, customerPO string, now time.Time) (Order, error) {
	if dealerID == "" {
		return Order{}, fmt.Errorf("%w: dealer id is required", ErrValidation)
	}
	if customerPO == "" {
		return Order{}, fmt.Errorf("%w: customer PO is required", ErrValidation)
	}
	return Order{
		ID:         id,
		DealerID:   dealerID,
		CustomerPO: customerPO,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (o *Order) transition(to OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: order %s cannot move from %s to %s", ErrInvalidState, o.ID, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

func (o *Order) requireDraft(op string) error {
	if o.Status != StatusDraft {
		return fmt.Errorf("%w: %s requires a draft order, %s is %s", ErrInvalidState, op, o.ID, o.Status)
	}
	return nil
}

// CheckEditable reports whether line items may change.
func (o *Order) CheckEditable() error {
	return o.requireDraft("editing items")
}

// SetItem updates the part's line in place or appends a new one.
func (o *Order) SetItem(partID string, qty int64, now time.Time) error {
	if err := o.requireDraft("set item"); err != nil {
		return err
	}
	for i := range o.Items {
		if o.Items[i].PartID == partID {
			o.Items[i].Quantity = qty
			o.UpdatedAt = now
			return nil
		}
	}
	o.Items = append(o.Items, OrderItem{PartID: partID, Quantity: qty})
	o.UpdatedAt = now
	return nil
}

// RemoveItem drops the part's line; a missing line is not an error.
func (o *Order) RemoveItem(partID string, now time.Time) error {
	if err := o.requireDraft("remove item"); err != nil {
		return err
	}
	for i := range o.Items {
		if o.Items[i].PartID == partID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			o.UpdatedAt = now
			return nil
		}
	}
	return nil
}

// Confirm moves a draft into confirming. It reports false when the order was
// already confirming.
func (o *Order) Confirm(now time.Time) (bool, error) {
	if o.Status == StatusConfirming {
		return false, nil
	}
	if err := o.requireDraft("confirm"); err != nil {
		return false, err
	}
	if len(o.Items) == 0 {
		return false, fmt.Errorf("%w: order %s has no line items", ErrEmptyOrder, o.ID)
	}
	return true, o.transition(StatusConfirming, now)
}

func (o *Order) CancelConfirm(now time.Time) error {
	if o.Status != StatusConfirming {
		return fmt.Errorf("%w: cancel confirm requires a confirming order, %s is %s", ErrInvalidState, o.ID, o.Status)
	}
	return o.transition(StatusDraft, now)
}

func (o *Order) BeginSubmit(now time.Time) error {
	if o.Status != StatusConfirming {
		return fmt.Errorf("%w: submit requires a confirming order, %s is %s", ErrInvalidState, o.ID, o.Status)
	}
	return o.transition(StatusSubmitting, now)
}

// MarkSubmitted sets SubmittedAt; it is never overwritten afterwards.
func (o *Order) MarkSubmitted(now time.Time) error {
	if err := o.transition(StatusSubmitted, now); err != nil {
		return err
	}
	if o.SubmittedAt == nil {
		at := now
		o.SubmittedAt = &at
	}
	return nil
}

func (o *Order) RollbackSubmit(now time.Time) error {
	if o.Status != StatusSubmitting {
		return fmt.Errorf("%w: order %s is not submitting", ErrInvalidState, o.ID)
	}
	return o.transition(StatusConfirming, now)
}

func (o *Order) Fail(now time.Time) error {
	return o.transition(StatusFailed, now)
}

func (o *Order) Abandon(now time.Time) error {
	if o.Status != StatusDraft && o.Status != StatusConfirming {
		return fmt.Errorf("%w: abandon requires a draft or confirming order, %s is %s", ErrInvalidState, o.ID, o.Status)
	}
	return o.transition(StatusAbandoned, now)
}

// Clone returns a deep copy safe to hand out of the workflow.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.SubmittedAt != nil {
		at := *o.SubmittedAt
		c.SubmittedAt = &at
	}
	return c
}
