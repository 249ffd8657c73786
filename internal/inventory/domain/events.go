package domain

// StockRestocked is the payload of the corrections feed consumed by the
// inventory service.
type StockRestocked struct {
	PartID   string `json:"part_id"`
	Quantity int64  `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
}
