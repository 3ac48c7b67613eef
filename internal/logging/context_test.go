package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_RunFields(t *testing.T) {
	ctx := WithRunID(context.Background(), "20261016-abc")
	ctx = WithCollection(ctx, "documents")
	ctx = WithSource(ctx, "/data/a.txt")

	tl := NewTestLogger()
	tl.Info(ctx, "chunked")

	tl.AssertField(t, "chunked", "run.id", "20261016-abc")
	tl.AssertField(t, "chunked", "collection", "documents")
	tl.AssertField(t, "chunked", "source", "/data/a.txt")
}

func TestContextFields_Trace(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tl := NewTestLogger()
	tl.Info(ctx, "traced")
	tl.AssertField(t, "traced", "trace_id", "0af7651916cd43dd8448eb211c80319c")
	tl.AssertField(t, "traced", "span_id", "b7ad6b7169203331")
}

func TestValidateRunID(t *testing.T) {
	assert.NoError(t, ValidateRunID("run_01-A"))
	assert.Error(t, ValidateRunID(""))
	assert.Error(t, ValidateRunID("run 1"))
	assert.Error(t, ValidateRunID(strings.Repeat("x", maxRunIDLen+1)))
}

func TestWithRunID_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { WithRunID(context.Background(), "bad/id") })
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}
