package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KasparTech1/Friday01/internal/inventory/domain"
	"github.com/KasparTech1/Friday01/pkg/idempotency"
	"github.com/KasparTech1/Friday01/pkg/tracing"
)

// Restocker is the ledger operation the corrections feed drives.
type Restocker interface {
	Restock(ctx context.Context, partID string, qty int64) error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer applies stock corrections published on the restock topic. A
// message is committed only after its correction was applied or rejected as
// malformed; store and redis failures are retried in place.
type Consumer struct {
	log        *slog.Logger
	reader     MessageReader
	ledger     Restocker
	idem       *idempotency.Store
	tracer     trace.Tracer
	retryDelay time.Duration
}

type ConsumerOption func(*Consumer)

func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, ledger Restocker, idem *idempotency.Store, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return NewConsumerWithReader(log, r, ledger, idem, opts...)
}

func NewConsumerWithReader(log *slog.Logger, reader MessageReader, ledger Restocker, idem *idempotency.Store, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		log:        log,
		reader:     reader,
		ledger:     ledger,
		idem:       idem,
		tracer:     otel.Tracer("restock-consumer"),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := c.process(ctx, msg); err != nil {
			// only returned once ctx is done; the message stays uncommitted
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// process applies msg, retrying transient failures until it succeeds or ctx is done.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	for {
		err := c.apply(ctx, msg)
		if err == nil {
			return nil
		}
		c.log.Warn("restock not applied, retrying", "offset", msg.Offset, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Consumer) apply(ctx context.Context, msg kafka.Message) error {
	var key string
	if c.idem != nil {
		key = c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		done, err := c.idem.Done(ctx, key)
		if err != nil {
			return fmt.Errorf("idempotency check: %w", err)
		}
		if done {
			c.log.Info("duplicate message skipped", "key", key)
			return nil
		}
	}
	if err := c.handle(ctx, msg); err != nil {
		return err
	}
	if key != "" {
		if err := c.idem.Mark(ctx, key); err != nil {
			c.log.Error("idempotency mark failed", "key", key, "err", err)
		}
	}
	return nil
}

// handle returns an error only for failures worth retrying. Malformed
// messages and corrections the ledger rejects are logged and dropped.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeStockRestocked")
	defer span.End()

	var ev domain.StockRestocked
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		span.RecordError(err)
		return nil
	}
	span.SetAttributes(attribute.String("part.id", ev.PartID), attribute.Int64("part.qty", ev.Quantity))

	if err := c.ledger.Restock(msgCtx, ev.PartID, ev.Quantity); err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrUnknownPart) || errors.Is(err, domain.ErrInvalidQuantity) {
			c.log.Error("restock rejected", "part_id", ev.PartID, "qty", ev.Quantity, "err", err)
			return nil
		}
		span.SetStatus(codes.Error, "restock failed")
		return fmt.Errorf("restock %s: %w", ev.PartID, err)
	}
	c.log.Info("restock applied", "part_id", ev.PartID, "qty", ev.Quantity, "reason", ev.Reason)
	return nil
}
