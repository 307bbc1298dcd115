package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestParseLogrusLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"info", logrus.InfoLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogrusLevel(tt.in))
		})
	}
}

func TestNewLogger_Formatters(t *testing.T) {
	dev := NewLogger("debug", "development")
	assert.Equal(t, logrus.DebugLevel, dev.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, dev.Formatter)

	prod := NewLogger("warn", "production")
	assert.Equal(t, logrus.WarnLevel, prod.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, prod.Formatter)

	var buf bytes.Buffer
	prod.SetOutput(&buf)
	prod.WithField("symbol", "BTCUSD").Warn("ledger unavailable")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "BTCUSD", line["symbol"])
	assert.Equal(t, "ledger unavailable", line["msg"])
}

type capturedRecord struct {
	body     string
	severity otellog.Severity
	attrs    map[string]string
}

type captureExporter struct {
	mu      sync.Mutex
	records []capturedRecord
}

func (e *captureExporter) Export(ctx context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		c := capturedRecord{
			body:     r.Body().AsString(),
			severity: r.Severity(),
			attrs:    map[string]string{},
		}
		r.WalkAttributes(func(kv otellog.KeyValue) bool {
			c.attrs[kv.Key] = kv.Value.String()
			return true
		})
		e.records = append(e.records, c)
	}
	return nil
}

func (e *captureExporter) Shutdown(ctx context.Context) error   { return nil }
func (e *captureExporter) ForceFlush(ctx context.Context) error { return nil }

func TestOTLPHook_ForwardsEntries(t *testing.T) {
	exporter := &captureExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(NewOTLPHook(provider.Logger("test"), logrus.InfoLevel))

	logger.Debug("filtered out")
	logger.WithFields(logrus.Fields{
		"symbol":     "BTCUSD",
		"confidence": 71.5,
		"error":      errors.New("disk full"),
	}).Warn("Failed to append regime event")

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	require.Len(t, exporter.records, 1)
	rec := exporter.records[0]
	assert.Equal(t, "Failed to append regime event", rec.body)
	assert.Equal(t, otellog.SeverityWarn, rec.severity)
	assert.Equal(t, "BTCUSD", rec.attrs["symbol"])
	assert.Equal(t, "disk full", rec.attrs["error"])
}

func TestNewOTLPHook_Levels(t *testing.T) {
	hook := NewOTLPHook(nil, logrus.WarnLevel)
	assert.ElementsMatch(t,
		[]logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel},
		hook.Levels())
}
