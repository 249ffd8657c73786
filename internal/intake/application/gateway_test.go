package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/KasparTech1/Friday01/internal/intake/domain"
	invapp "github.com/KasparTech1/Friday01/internal/inventory/application"
	invdomain "github.com/KasparTech1/Friday01/internal/inventory/domain"
	invmem "github.com/KasparTech1/Friday01/internal/inventory/infrastructure/memory"
	orderapp "github.com/KasparTech1/Friday01/internal/order/application"
	ordermem "github.com/KasparTech1/Friday01/internal/order/infrastructure/memory"
)

func newGateway(t *testing.T, opts ...GatewayOption) *Gateway {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := invapp.NewLedger(log, invmem.NewStore(invdomain.DefaultCatalog()))
	require.NoError(t, ledger.Load(context.Background()))
	res := invapp.NewReservationManager(log, ledger)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	wf := orderapp.NewWorkflow(log, ordermem.NewRepository(), res, ledger,
		orderapp.WithClock(func() time.Time { return clock }))
	return NewGateway(log, wf, res, opts...)
}

func requireKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	var ie *domain.Error
	require.ErrorAs(t, err, &ie)
	require.Equal(t, kind, ie.Kind, ie.Message)
}

func line(t *testing.T, lines []InventoryLine, part string) InventoryLine {
	t.Helper()
	for _, l := range lines {
		if l.PartID == part {
			return l
		}
	}
	t.Fatalf("part %s not listed", part)
	return InventoryLine{}
}

func TestGateway_ListEffectiveInventory(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t)

	o, err := g.CreateOrder(ctx, "D-1", "PO-1")
	require.NoError(t, err)
	_, err = g.SetOrderItem(ctx, o.ID, "8002", 5)
	require.NoError(t, err)

	lines, err := g.ListEffectiveInventory(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 5)

	saddle := line(t, lines, "8002")
	require.Equal(t, int64(5), saddle.QtyOnHand)
	require.Equal(t, int64(5), saddle.Reserved)
	require.Equal(t, int64(0), saddle.EffectiveQty)
	require.False(t, saddle.CanOrder)
	require.Equal(t, "999.99", saddle.Price.StringFixed(2))

	require.Equal(t, StockOut, saddle.StockLevel)

	require.True(t, line(t, lines, "80-1234").CanOrder)
	require.Equal(t, StockHigh, line(t, lines, "80-1234").StockLevel)
	require.Equal(t, StockLow, line(t, lines, "8001").StockLevel)
}

func TestStockLevel(t *testing.T) {
	tests := []struct {
		effective int64
		want      string
	}{
		{50, StockHigh},
		{21, StockHigh},
		{20, StockLow},
		{1, StockLow},
		{0, StockOut},
		{-3, StockOut},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, stockLevel(tt.effective), "effective %d", tt.effective)
	}
}

func TestGateway_TrimsIdentifiers(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t)

	o, err := g.CreateOrder(ctx, " D-7 ", "\tPO-9 ")
	require.NoError(t, err)
	require.Equal(t, "D-7", o.DealerID)
	require.Equal(t, "PO-9", o.CustomerPO)

	listed, err := g.ListDealerOrders(ctx, " D-7")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = g.SetOrderItem(ctx, " "+o.ID+" ", " 8001 ", 2)
	require.NoError(t, err)
	got, err := g.GetOrder(ctx, o.ID+" ")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, "8001", got.Items[0].PartID)

	require.NoError(t, g.RemoveOrderItem(ctx, o.ID, "8001 "))
	got, err = g.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Empty(t, got.Items)
}

func TestGateway_OrderLifecycle(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t)

	o, err := g.CreateOrder(ctx, " D-1 ", "PO-1")
	require.NoError(t, err)
	require.Equal(t, "D-1", o.DealerID)
	require.Equal(t, "draft", o.Status)

	_, err = g.ConfirmOrder(ctx, o.ID)
	requireKind(t, err, domain.KindEmptyOrder)

	eff, err := g.SetOrderItem(ctx, o.ID, "80-1234", 20)
	require.NoError(t, err)
	require.Equal(t, int64(30), eff)
	_, err = g.SetOrderItem(ctx, o.ID, "82-9012", 2)
	require.NoError(t, err)

	view, err := g.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	require.True(t, decimal.RequireFromString("26599.78").Equal(view.Total), view.Total.String())

	_, err = g.ConfirmOrder(ctx, o.ID)
	require.NoError(t, err)
	res, err := g.SubmitOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, "submitted", res.Status)

	again, err := g.SubmitOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, res, again)

	_, err = g.AbandonOrder(ctx, o.ID)
	requireKind(t, err, domain.KindInvalidState)

	orders, err := g.ListDealerOrders(ctx, "D-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].SubmittedAt)
}

func TestGateway_Validation(t *testing.T) {
	ctx := context.Background()
	g := newGateway(t, WithMaxLineQuantity(50))
	o, err := g.CreateOrder(ctx, "D-1", "PO-1")
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
		kind domain.Kind
	}{
		{"missing dealer", func() error { _, err := g.CreateOrder(ctx, "  ", "PO"); return err }, domain.KindValidation},
		{"missing po", func() error { _, err := g.CreateOrder(ctx, "D-1", ""); return err }, domain.KindValidation},
		{"zero qty", func() error { _, err := g.SetOrderItem(ctx, o.ID, "8001", 0); return err }, domain.KindValidation},
		{"negative qty", func() error { _, err := g.SetOrderItem(ctx, o.ID, "8001", -1); return err }, domain.KindValidation},
		{"qty over cap", func() error { _, err := g.SetOrderItem(ctx, o.ID, "80-1234", 51); return err }, domain.KindValidation},
		{"empty part", func() error { _, err := g.SetOrderItem(ctx, o.ID, "", 1); return err }, domain.KindValidation},
		{"unknown part", func() error { _, err := g.SetOrderItem(ctx, o.ID, "99-9999", 1); return err }, domain.KindUnknownPart},
		{"over availability", func() error { _, err := g.SetOrderItem(ctx, o.ID, "8002", 6); return err }, domain.KindInsufficientAvailability},
		{"unknown order", func() error { _, err := g.GetOrder(ctx, "missing"); return err }, domain.KindNotFound},
		{"submit draft", func() error { _, err := g.SubmitOrder(ctx, o.ID); return err }, domain.KindInvalidState},
		{"cancel draft", func() error { _, err := g.CancelConfirm(ctx, o.ID); return err }, domain.KindInvalidState},
		{"remove from unknown order", func() error { return g.RemoveOrderItem(ctx, "missing", "8001") }, domain.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireKind(t, tt.call(), tt.kind)
		})
	}
}
