package domain

import "time"

const (
	EventOrderSubmitted = "OrderSubmitted"
	EventOrderAbandoned = "OrderAbandoned"
	EventOrderFailed    = "OrderFailed"
)

type OrderSubmitted struct {
	OrderID     string
	DealerID    string
	CustomerPO  string
	Items       []OrderItem
	SubmittedAt time.Time
}

type OrderAbandoned struct {
	OrderID  string
	DealerID string
}

type OrderFailed struct {
	OrderID  string
	DealerID string
	Reason   string
}
