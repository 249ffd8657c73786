package tracing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceparentRoundTrip(t *testing.T) {
	ctx := context.Background()
	tp, err := Init(ctx, "intake-test", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	require.Empty(t, Traceparent(ctx))

	spanCtx, span := tp.Tracer("test").Start(ctx, "submit")
	defer span.End()
	want := span.SpanContext()

	header := Traceparent(spanCtx)
	require.NotEmpty(t, header)

	got := trace.SpanContextFromContext(FromTraceparent(ctx, header))
	require.Equal(t, want.TraceID(), got.TraceID())
	require.Equal(t, want.SpanID(), got.SpanID())
	require.True(t, got.IsRemote())

	fromKafka := trace.SpanContextFromContext(ExtractKafkaHeaders(ctx, []kafka.Header{
		{Key: "event_type", Value: []byte("OrderSubmitted")},
		{Key: TraceparentHeader, Value: []byte(header)},
	}))
	require.Equal(t, want.TraceID(), fromKafka.TraceID())

	require.Equal(t, ctx, FromTraceparent(ctx, ""))
}
