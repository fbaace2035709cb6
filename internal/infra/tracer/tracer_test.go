package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, ok := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, ok, "expected noop provider")
}

func TestSetupExporters(t *testing.T) {
	for _, exp := range []string{"noop", "", "stdout"} {
		shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exp})
		require.NoError(t, err, exp)
		require.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestStartSpanAddsRequestID(t *testing.T) {
	rec := withRecorder(t)

	ctx := domain.ContextWithRequestID(context.Background(), "req-1")
	_, span := StartSpan(ctx, "filter.inlet")
	Finish(span, nil)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "filter.inlet", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	var found bool
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "request_id" {
			found = kv.Value.AsString() == "req-1"
		}
	}
	assert.True(t, found, "request_id attribute missing")
}

func TestFinishRecordsErrorCode(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartSpan(context.Background(), "tool.invoke")
	Finish(span, domain.WrapOp("invoke", domain.ErrToolNotFound))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	var code string
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "error.code" {
			code = kv.Value.AsString()
		}
	}
	assert.Equal(t, string(domain.CodeToolNotFound), code)
}

func TestHelpersOnNoopSpan(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())
	_, span := StartSpan(context.Background(), "test-span")
	Finish(span, nil)
	RecordError(span, errors.New("test error"))
	span.End()
}

func TestAttrHelpers(t *testing.T) {
	assert.Equal(t, "key", string(StringAttr("key", "value").Key))
	assert.Equal(t, int64(42), IntAttr("count", 42).Value.AsInt64())
}
