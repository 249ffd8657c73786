//go:build integration

package intergration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	invapp "github.com/KasparTech1/Friday01/internal/inventory/application"
	invdomain "github.com/KasparTech1/Friday01/internal/inventory/domain"
	invpg "github.com/KasparTech1/Friday01/internal/inventory/infrastructure/postgres"
	orderapp "github.com/KasparTech1/Friday01/internal/order/application"
	orderdomain "github.com/KasparTech1/Friday01/internal/order/domain"
	orderkafka "github.com/KasparTech1/Friday01/internal/order/infrastructure/kafka"
	orderpg "github.com/KasparTech1/Friday01/internal/order/infrastructure/postgres"
	"github.com/KasparTech1/Friday01/migrations"
	"github.com/KasparTech1/Friday01/pkg/outbox"
)

var env *Env

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error
	env, err = Setup(ctx)
	if err != nil {
		panic(err)
	}
	code := m.Run()
	env.Teardown(ctx)
	os.Exit(code)
}

func newPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	require.NoError(t, migrations.Up(ctx, db))
	require.NoError(t, db.Close())
	return pool
}

func TestSubmitDeductsOnceAndRelaysEvent(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := newPool(t)

	ledger := invapp.NewLedger(log, invpg.NewRepository(log, pool))
	require.NoError(t, ledger.Load(ctx))
	before, err := ledger.GetOnHand("82-9012")
	require.NoError(t, err)

	res := invapp.NewReservationManager(log, ledger)
	repo := orderpg.NewRepository(log, pool)
	wf := orderapp.NewWorkflow(log, repo, res, ledger)

	o, err := wf.CreateDraft(ctx, "D-100", "PO-7")
	require.NoError(t, err)
	_, err = wf.AddOrUpdateItem(ctx, o.ID, "82-9012", 4)
	require.NoError(t, err)
	_, err = wf.Confirm(ctx, o.ID)
	require.NoError(t, err)

	first, err := wf.Submit(ctx, o.ID)
	require.NoError(t, err)
	again, err := wf.Submit(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, first, again)

	after, err := ledger.GetOnHand("82-9012")
	require.NoError(t, err)
	require.Equal(t, before-4, after)

	deducted, err := ledger.WasDeducted(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, deducted)

	stored, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, orderdomain.StatusSubmitted, stored.Status)
	require.Equal(t, []orderdomain.OrderItem{{PartID: "82-9012", Quantity: 4}}, stored.Items)

	topic := "order.events.it"
	writer := orderkafka.NewWriter(env.KAddr)
	t.Cleanup(func() { _ = writer.Close() })
	relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, pool), outbox.NewDispatcher(log, writer, topic), "it-relay")

	require.Eventually(t, func() bool {
		n, err := relay.Flush(ctx)
		return err == nil && n > 0
	}, 30*time.Second, 500*time.Millisecond)

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: env.KAddr, Topic: topic, GroupID: "it-reader"})
	t.Cleanup(func() { _ = reader.Close() })
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for {
		msg, err := reader.ReadMessage(readCtx)
		require.NoError(t, err)
		if string(msg.Key) != o.ID {
			continue
		}
		var ev orderdomain.OrderSubmitted
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		require.Equal(t, o.ID, ev.OrderID)
		require.Equal(t, "D-100", ev.DealerID)
		break
	}
}

func TestLedgerRejectsPartialBatch(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := newPool(t)

	ledger := invapp.NewLedger(log, invpg.NewRepository(log, pool))
	require.NoError(t, ledger.Load(ctx))
	a, err := ledger.GetOnHand("80-1234")
	require.NoError(t, err)
	b, err := ledger.GetOnHand("8002")
	require.NoError(t, err)

	err = ledger.DeductBatch(ctx, "batch-1", []invdomain.Deduction{
		{PartID: "80-1234", Quantity: 1},
		{PartID: "8002", Quantity: b + 1},
	})
	require.ErrorIs(t, err, invdomain.ErrInsufficientStock)

	// Reload from the database to prove nothing was written.
	fresh := invapp.NewLedger(log, invpg.NewRepository(log, pool))
	require.NoError(t, fresh.Load(ctx))
	gotA, err := fresh.GetOnHand("80-1234")
	require.NoError(t, err)
	require.Equal(t, a, gotA)
	deducted, err := fresh.WasDeducted(ctx, "batch-1")
	require.NoError(t, err)
	require.False(t, deducted)
}

func TestRecoverRestoresHoldsFromPostgres(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := newPool(t)

	ledger := invapp.NewLedger(log, invpg.NewRepository(log, pool))
	require.NoError(t, ledger.Load(ctx))
	res := invapp.NewReservationManager(log, ledger)
	repo := orderpg.NewRepository(log, pool)
	wf := orderapp.NewWorkflow(log, repo, res, ledger)

	o, err := wf.CreateDraft(ctx, "D-200", "PO-9")
	require.NoError(t, err)
	_, err = wf.AddOrUpdateItem(ctx, o.ID, "81-5678", 3)
	require.NoError(t, err)

	ledger2 := invapp.NewLedger(log, invpg.NewRepository(log, pool))
	require.NoError(t, ledger2.Load(ctx))
	res2 := invapp.NewReservationManager(log, ledger2)
	wf2 := orderapp.NewWorkflow(log, repo, res2, ledger2)
	_, err = wf2.Recover(ctx)
	require.NoError(t, err)

	require.Equal(t, map[string]int64{"81-5678": 3}, res2.Holds(o.ID))
}
