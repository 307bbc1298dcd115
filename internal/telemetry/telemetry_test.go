package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer_Disabled(t *testing.T) {
	p, err := InitTracer(context.Background(), TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, p.TracerProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitTracer_StdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	p, err := InitTracer(context.Background(), TelemetryConfig{
		Enabled:     true,
		Exporter:    "stdout",
		Environment: "test",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "regime.Detect")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "regime.Detect")
	assert.Contains(t, buf.String(), ServiceName)
}

func TestInitTracer_UnknownExporter(t *testing.T) {
	_, err := InitTracer(context.Background(), TelemetryConfig{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported trace exporter")
}

func TestProvider_NilShutdown(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
