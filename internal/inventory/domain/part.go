package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownPart              = errors.New("unknown part")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrCommitFailed             = errors.New("commit failed")
)

type Part struct {
	ID          string
	Description string
	QtyOnHand   int64
	PriceCents  int64
}

// Price renders the unit price with two fixed decimal places.
func (p Part) Price() decimal.Decimal {
	return decimal.New(p.PriceCents, -2)
}

// Deduction is one line of a multi-part stock deduction.
type Deduction struct {
	PartID   string
	Quantity int64
}

// Availability is the read projection of a part for the inventory grid.
type Availability struct {
	Part         Part
	Reserved     int64
	EffectiveQty int64
}

// DefaultCatalog is the dealer dashboard's starter stock.
func DefaultCatalog() []Part {
	return []Part{
		{ID: "80-1234", Description: "Western Saddle - Premium Leather", QtyOnHand: 50, PriceCents: 129999},
		{ID: "8001", Description: "Western Saddle", QtyOnHand: 10, PriceCents: 89999},
		{ID: "8002", Description: "English Saddle", QtyOnHand: 5, PriceCents: 99999},
		{ID: "81-5678", Description: "English Saddle - Competition Grade", QtyOnHand: 35, PriceCents: 149999},
		{ID: "82-9012", Description: "Leather Bridle Set", QtyOnHand: 100, PriceCents: 29999},
	}
}
