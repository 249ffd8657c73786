package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KasparTech1/Friday01/internal/intake/domain"
	invapp "github.com/KasparTech1/Friday01/internal/inventory/application"
	invdomain "github.com/KasparTech1/Friday01/internal/inventory/domain"
	orderapp "github.com/KasparTech1/Friday01/internal/order/application"
	orderdomain "github.com/KasparTech1/Friday01/internal/order/domain"
)

const DefaultMaxLineQuantity = 10000

// Stock levels shown next to the effective quantity.
const (
	StockHigh = "high"
	StockLow  = "low"
	StockOut  = "out"
)

// highStockAbove is the effective quantity above which a part shows as high.
const highStockAbove = 20

func stockLevel(effective int64) string {
	switch {
	case effective > highStockAbove:
		return StockHigh
	case effective > 0:
		return StockLow
	default:
		return StockOut
	}
}

type Orders interface {
	CreateDraft(ctx context.Context, dealerID, customerPO string) (orderdomain.Order, error)
	Get(ctx context.Context, id string) (orderdomain.Order, error)
	ListByDealer(ctx context.Context, dealerID string) ([]orderdomain.Order, error)
	AddOrUpdateItem(ctx context.Context, orderID, partID string, qty int64) (int64, error)
	RemoveItem(ctx context.Context, orderID, partID string) error
	Confirm(ctx context.Context, orderID string) (orderdomain.Order, error)
	CancelConfirm(ctx context.Context, orderID string) (orderdomain.Order, error)
	Submit(ctx context.Context, orderID string) (orderapp.SubmitResult, error)
	Abandon(ctx context.Context, orderID string) (orderdomain.Order, error)
}

type Inventory interface {
	Snapshot() []invdomain.Availability
}

var (
	_ Orders    = (*orderapp.Workflow)(nil)
	_ Inventory = (*invapp.ReservationManager)(nil)
)

type InventoryLine struct {
	PartID       string          `json:"part"`
	Description  string          `json:"description"`
	QtyOnHand    int64           `json:"qtyOnHand"`
	Reserved     int64           `json:"reserved"`
	EffectiveQty int64           `json:"effectiveQty"`
	Price        decimal.Decimal `json:"price"`
	CanOrder     bool            `json:"canOrder"`
	StockLevel   string          `json:"stockLevel"`
}

type OrderLine struct {
	PartID      string          `json:"part"`
	Description string          `json:"description,omitempty"`
	Quantity    int64           `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type OrderView struct {
	ID          string          `json:"orderId"`
	DealerID    string          `json:"dealerId"`
	CustomerPO  string          `json:"customerPo"`
	Status      string          `json:"status"`
	Items       []OrderLine     `json:"items"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
}

type SubmitView struct {
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Gateway is the single entry point for dashboard requests. It validates
// input, delegates to the workflow and maps every failure onto domain.Kind.
type Gateway struct {
	log     *slog.Logger
	orders  Orders
	inv     Inventory
	maxLine int64
}

type GatewayOption func(*Gateway)

func WithMaxLineQuantity(n int64) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.maxLine = n
		}
	}
}

func NewGateway(log *slog.Logger, orders Orders, inv Inventory, opts ...GatewayOption) *Gateway {
	g := &Gateway{log: log, orders: orders, inv: inv, maxLine: DefaultMaxLineQuantity}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) ListEffectiveInventory(ctx context.Context) ([]InventoryLine, error) {
	snap := g.inv.Snapshot()
	lines := make([]InventoryLine, 0, len(snap))
	for _, a := range snap {
		lines = append(lines, InventoryLine{
			PartID:       a.Part.ID,
			Description:  a.Part.Description,
			QtyOnHand:    a.Part.QtyOnHand,
			Reserved:     a.Reserved,
			EffectiveQty: a.EffectiveQty,
			Price:        a.Part.Price(),
			CanOrder:     a.EffectiveQty > 0,
			StockLevel:   stockLevel(a.EffectiveQty),
		})
	}
	return lines, nil
}

func (g *Gateway) CreateOrder(ctx context.Context, dealerID, customerPO string) (OrderView, error) {
	dealerID, err := identifier("dealerId", dealerID)
	if err != nil {
		return OrderView{}, err
	}
	customerPO, err = identifier("customerPo", customerPO)
	if err != nil {
		return OrderView{}, err
	}
	o, err := g.orders.CreateDraft(ctx, dealerID, customerPO)
	if err != nil {
		return OrderView{}, g.fail("create order", err)
	}
	return g.view(o), nil
}

func (g *Gateway) GetOrder(ctx context.Context, orderID string) (OrderView, error) {
	orderID, err := identifier("orderId", orderID)
	if err != nil {
		return OrderView{}, err
	}
	o, err := g.orders.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, g.fail("get order", err)
	}
	return g.view(o), nil
}

func (g *Gateway) ListDealerOrders(ctx context.Context, dealerID string) ([]OrderView, error) {
	dealerID, err := identifier("dealerId", dealerID)
	if err != nil {
		return nil, err
	}
	orders, err := g.orders.ListByDealer(ctx, dealerID)
	if err != nil {
		return nil, g.fail("list dealer orders", err)
	}
	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, g.view(o))
	}
	return views, nil
}

// SetOrderItem sets the line to exactly qty and returns the part's effective
// quantity afterwards.
func (g *Gateway) SetOrderItem(ctx context.Context, orderID, partID string, qty int64) (int64, error) {
	orderID, err := identifier("orderId", orderID)
	if err != nil {
		return 0, err
	}
	partID, err = identifier("part", partID)
	if err != nil {
		return 0, err
	}
	if qty < 1 || qty > g.maxLine {
		return 0, domain.Validation("qty must be between 1 and %d, got %d", g.maxLine, qty)
	}
	effective, err := g.orders.AddOrUpdateItem(ctx, orderID, partID, qty)
	if err != nil {
		return 0, g.fail("set order item", err)
	}
	return effective, nil
}

func (g *Gateway) RemoveOrderItem(ctx context.Context, orderID, partID string) error {
	orderID, err := identifier("orderId", orderID)
	if err != nil {
		return err
	}
	partID, err = identifier("part", partID)
	if err != nil {
		return err
	}
	if err := g.orders.RemoveItem(ctx, orderID, partID); err != nil {
		return g.fail("remove order item", err)
	}
	return nil
}

func (g *Gateway) ConfirmOrder(ctx context.Context, orderID string) (OrderView, error) {
	return g.transition(ctx, "confirm order", orderID, g.orders.Confirm)
}

func (g *Gateway) CancelConfirm(ctx context.Context, orderID string) (OrderView, error) {
	return g.transition(ctx, "cancel confirm", orderID, g.orders.CancelConfirm)
}

func (g *Gateway) AbandonOrder(ctx context.Context, orderID string) (OrderView, error) {
	return g.transition(ctx, "abandon order", orderID, g.orders.Abandon)
}

func (g *Gateway) SubmitOrder(ctx context.Context, orderID string) (SubmitView, error) {
	orderID, err := identifier("orderId", orderID)
	if err != nil {
		return SubmitView{}, err
	}
	res, err := g.orders.Submit(ctx, orderID)
	if err != nil {
		return SubmitView{}, g.fail("submit order", err)
	}
	return SubmitView{Status: string(res.Status), SubmittedAt: res.SubmittedAt}, nil
}

func (g *Gateway) transition(ctx context.Context, op, orderID string, fn func(context.Context, string) (orderdomain.Order, error)) (OrderView, error) {
	orderID, err := identifier("orderId", orderID)
	if err != nil {
		return OrderView{}, err
	}
	o, err := fn(ctx, orderID)
	if err != nil {
		return OrderView{}, g.fail(op, err)
	}
	return g.view(o), nil
}

func (g *Gateway) fail(op string, err error) error {
	out := domain.Translate(err)
	if domain.KindOf(out) == domain.KindInternal {
		g.log.Error(op+" failed", "err", err)
	} else {
		g.log.Debug(op+" rejected", "kind", domain.KindOf(out), "err", err)
	}
	return out
}

func (g *Gateway) view(o orderdomain.Order) OrderView {
	prices := make(map[string]invdomain.Part)
	for _, a := range g.inv.Snapshot() {
		prices[a.Part.ID] = a.Part
	}
	v := OrderView{
		ID:          o.ID,
		DealerID:    o.DealerID,
		CustomerPO:  o.CustomerPO,
		Status:      string(o.Status),
		Items:       make([]OrderLine, 0, len(o.Items)),
		Total:       decimal.Zero,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		SubmittedAt: o.SubmittedAt,
	}
	for _, it := range o.Items {
		p := prices[it.PartID]
		unit := p.Price()
		line := unit.Mul(decimal.NewFromInt(it.Quantity))
		v.Items = append(v.Items, OrderLine{
			PartID:      it.PartID,
			Description: p.Description,
			Quantity:    it.Quantity,
			UnitPrice:   unit,
			LineTotal:   line,
		})
		v.Total = v.Total.Add(line)
	}
	return v
}

// identifier trims value and rejects it when nothing is left.
func identifier(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", domain.Validation("%s is required", field)
	}
	return value, nil
}
