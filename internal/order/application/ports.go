package application

import (
	"context"

	"github.com/KasparTech1/Friday01/internal/order/domain"
)

type OrderRepository interface {
	Save(ctx context.Context, o domain.Order) error
	SaveWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, headers map[string]string, traceparent string) error
	// Get returns domain.ErrOrderNotFound for unknown IDs.
	Get(ctx context.Context, id string) (domain.Order, error)
	ListByDealer(ctx context.Context, dealerID string) ([]domain.Order, error)
	// ListOpen returns every order that is not in a terminal status.
	ListOpen(ctx context.Context) ([]domain.Order, error)
}

type Reservations interface {
	Reserve(orderID, partID string, qty int64) (int64, error)
	Restore(orderID, partID string, qty int64) error
	Release(orderID, partID string)
	ReleaseAll(orderID string) int
	Commit(ctx context.Context, orderID string) error
}

type DeductionLog interface {
	WasDeducted(ctx context.Context, orderID string) (bool, error)
}
