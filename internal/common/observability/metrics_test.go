package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestObservability(t *testing.T) (*Observability, *metric.ManualReader) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	o, err := newWithMeter(provider.Meter("test"), otel.Tracer("test"))
	require.NoError(t, err)
	o.meterProvider = provider
	return o, reader
}

func TestRecordJobProcessed(t *testing.T) {
	o, reader := newTestObservability(t)
	ctx := context.Background()

	o.RecordJobProcessed(ctx, "match-candidates-for-job", "success")
	o.RecordJobProcessed(ctx, "match-candidates-for-job", "success")
	o.RecordJobProcessed(ctx, "match-jobs-for-candidate", "error")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sum, ok := findMetric(rm, "jobs.processed").(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 2)
}

func TestRecordJobDuration(t *testing.T) {
	o, reader := newTestObservability(t)
	ctx := context.Background()

	o.RecordJobDuration(ctx, "match-candidates-for-job", 250*time.Millisecond, "success")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	hist, ok := findMetric(rm, "jobs.duration").(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, float64(250), hist.DataPoints[0].Sum)
}

func TestNoop(t *testing.T) {
	o := NewNoop()
	ctx, span := o.StartSpan(context.Background(), "match-batch")
	defer span.End()

	o.RecordJobProcessed(ctx, "t", "success")
	o.RecordJobDuration(ctx, "t", time.Second, "success")
	assert.NoError(t, o.Shutdown(ctx))
}

func TestShutdown(t *testing.T) {
	o, _ := newTestObservability(t)
	assert.NoError(t, o.Shutdown(context.Background()))
}

func findMetric(rm metricdata.ResourceMetrics, name string) metricdata.Aggregation {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	return nil
}
