package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KasparTech1/Friday01/internal/config"
	intakeapp "github.com/KasparTech1/Friday01/internal/intake/application"
	intakehttp "github.com/KasparTech1/Friday01/internal/intake/infrastructure/http"
	invapp "github.com/KasparTech1/Friday01/internal/inventory/application"
	invdomain "github.com/KasparTech1/Friday01/internal/inventory/domain"
	invgrpc "github.com/KasparTech1/Friday01/internal/inventory/infrastructure/grpc"
	invkafka "github.com/KasparTech1/Friday01/internal/inventory/infrastructure/kafka"
	invmem "github.com/KasparTech1/Friday01/internal/inventory/infrastructure/memory"
	invpg "github.com/KasparTech1/Friday01/internal/inventory/infrastructure/postgres"
	orderapp "github.com/KasparTech1/Friday01/internal/order/application"
	orderkafka "github.com/KasparTech1/Friday01/internal/order/infrastructure/kafka"
	ordermem "github.com/KasparTech1/Friday01/internal/order/infrastructure/memory"
	orderpg "github.com/KasparTech1/Friday01/internal/order/infrastructure/postgres"
	"github.com/KasparTech1/Friday01/migrations"
	"github.com/KasparTech1/Friday01/pkg/idempotency"
	"github.com/KasparTech1/Friday01/pkg/logging"
	"github.com/KasparTech1/Friday01/pkg/outbox"
	"github.com/KasparTech1/Friday01/pkg/shutdown"
	"github.com/KasparTech1/Friday01/pkg/tracing"
)

type storage struct {
	ledger invapp.LedgerStore
	orders orderapp.OrderRepository
	outbox outbox.Store
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.ServiceName).With("env", cfg.Env)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTELEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Error("storage init failed", "storage", cfg.Storage, "err", err)
		os.Exit(1)
	}

	health := invgrpc.NewServer()
	grpcSrv, err := invgrpc.Run(cfg.GRPCAddr, health)
	if err != nil {
		log.Error("grpc listen failed", "addr", cfg.GRPCAddr, "err", err)
		os.Exit(1)
	}
	log.Info("grpc health listening", "addr", cfg.GRPCAddr)

	ledger := invapp.NewLedger(log, st.ledger)
	if err := ledger.Load(ctx); err != nil {
		log.Error("ledger load failed", "err", err)
		os.Exit(1)
	}
	reservations := invapp.NewReservationManager(log, ledger)
	workflow := orderapp.NewWorkflow(log, st.orders, reservations, ledger,
		orderapp.WithCommitFailurePolicy(orderapp.CommitFailurePolicy(cfg.CommitFailurePolicy)))
	if _, err := workflow.Recover(ctx); err != nil {
		log.Error("order recovery failed", "err", err)
		os.Exit(1)
	}
	health.SetReady(true)

	gateway := intakeapp.NewGateway(log, workflow, reservations,
		intakeapp.WithMaxLineQuantity(cfg.MaxLineQuantity))

	var rdb *redis.Client
	var idem *idempotency.Store
	handlerOpts := []intakehttp.Option{intakehttp.WithReadiness(func() bool { return ctx.Err() == nil })}
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, idempotency checks will pass through", "addr", cfg.RedisAddr, "err", err)
		}
		idem = idempotency.NewStore(rdb, cfg.IdempotencyTTL)
		handlerOpts = append(handlerOpts, intakehttp.WithIdempotency(idem))
	}
	handler := intakehttp.NewHandler(log, gateway, handlerOpts...)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(handler.Routes(), "intake-http"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var writer *orderkafka.Writer
	if cfg.KafkaEnabled() {
		writer = orderkafka.NewWriter(cfg.KafkaBrokers)
		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relay := outbox.NewRelay(log, st.outbox, dispatch, cfg.ServiceName+"-relay",
			outbox.WithInterval(cfg.OutboxInterval))
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()

		consumer := invkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.RestockTopic, cfg.RestockGroup, ledger, idem)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("restock consumer stopped with error", "err", err)
			}
		}()
	} else {
		log.Info("kafka disabled, outbox events stay pending")
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	health.Shutdown()

	steps := []shutdown.Step{
		{Name: "http", Fn: srv.Shutdown},
		{Name: "grpc", Fn: func(context.Context) error { grpcSrv.GracefulStop(); return nil }},
	}
	if writer != nil {
		steps = append(steps, shutdown.Step{Name: "kafka writer", Fn: func(context.Context) error { return writer.Close() }})
	}
	if rdb != nil {
		steps = append(steps, shutdown.Step{Name: "redis", Fn: func(context.Context) error { return rdb.Close() }})
	}
	steps = append(steps,
		shutdown.Step{Name: "storage", Fn: func(context.Context) error { st.close(); return nil }},
		shutdown.Step{Name: "tracer", Fn: tp.Shutdown},
	)
	shutdown.Run(log, cfg.ShutdownTimeout, steps...)
	log.Info("intake-service shutdown complete")
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (storage, error) {
	if cfg.Storage == config.StorageMemory {
		orders := ordermem.NewRepository()
		log.Info("using in-memory storage")
		return storage{
			ledger: invmem.NewStore(invdomain.DefaultCatalog()),
			orders: orders,
			outbox: orders,
			close:  func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		return storage{}, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return storage{}, err
	}
	db := stdlib.OpenDBFromPool(pool)
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		pool.Close()
		return storage{}, err
	}
	_ = db.Close()
	log.Info("postgres storage ready")
	return storage{
		ledger: invpg.NewRepository(log, pool),
		orders: orderpg.NewRepository(log, pool),
		outbox: orderpg.NewOutboxStore(log, pool),
		close:  pool.Close,
	}, nil
}
