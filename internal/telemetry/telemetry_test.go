package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitLoggerWritesJSONFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	logger, closer, err := InitLogger(dir, true)
	require.NoError(t, err)

	logger.Debug("created session", "session_id", "abc123")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "coach.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"created session"`)
	assert.Contains(t, string(data), `"session_id":"abc123"`)
	assert.Contains(t, string(data), `"service":"coach"`)
}

func TestInitTelemetry(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	dir := t.TempDir()
	tracer, meter, cleanup, err := InitTelemetry(context.Background(), dir)
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "session.fetch_state")
	span.End()
	counter, err := meter.Int64Counter("coach.test")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	cleanup()

	traces, err := os.ReadFile(filepath.Join(dir, "coach_traces.log"))
	require.NoError(t, err)
	assert.Contains(t, string(traces), "session.fetch_state")

	metrics, err := os.ReadFile(filepath.Join(dir, "coach_metrics.log"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "coach.test")
}
