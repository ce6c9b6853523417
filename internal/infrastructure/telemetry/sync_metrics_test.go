package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*SyncMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewSyncMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestSyncMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordConflict(ctx, "product", "stock", "rejected")
	m.RecordConflict(ctx, "product", "stock", "rejected")
	m.RecordTokenRefresh(ctx, RefreshExchanged)
	m.RecordTokenRefresh(ctx, RefreshDeduplicated)
	m.RecordTokenRefresh(ctx, RefreshDeduplicated)

	data := collect(t, reader)

	conflicts, ok := data["sync_conflicts_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, conflicts.DataPoints, 1)
	assert.Equal(t, int64(2), conflicts.DataPoints[0].Value)
	outcome, _ := conflicts.DataPoints[0].Attributes.Value(AttrOutcome)
	assert.Equal(t, "rejected", outcome.AsString())

	refreshes, ok := data["sync_token_refresh_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	byResult := map[string]int64{}
	for _, dp := range refreshes.DataPoints {
		v, _ := dp.Attributes.Value(AttrResult)
		byResult[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{RefreshExchanged: 1, RefreshDeduplicated: 2}, byResult)
}

func TestSyncMetrics_PipelineStepHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordPipelineStep(context.Background(), "pull_storefront", "COMPLETED", 3*time.Second)

	hist, ok := collect(t, reader)["sync_pipeline_step_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 3.0, hist.DataPoints[0].Sum, 0.001)
	assert.True(t, hist.DataPoints[0].Attributes.HasValue(AttrStep))
}

func TestSyncMetrics_NilIsNoop(t *testing.T) {
	var m *SyncMetrics
	assert.NotPanics(t, func() {
		m.RecordConflict(context.Background(), "order", "ops", "local_wins")
		m.RecordWrite(context.Background(), "order", "OPS")
		m.RecordEcho(context.Background(), "order")
		m.RecordPipelineStep(context.Background(), "x", "FAILED", time.Second)
		m.RecordTokenRefresh(context.Background(), RefreshFailed)
	})
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	_, err := NewSyncMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

