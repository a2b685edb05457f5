package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordSignal("buy")
	r.RecordSignal("buy")
	r.RecordAssessment("rejected")
	r.RecordOrder("filled")
	r.RecordError("data_layer")
	r.RecordExposure(12.5)
	r.RecordLastPrice("BTC/USD", 41000)
	r.RecordMessageSent("kafka", "executions")
	r.RecordCycle(0.01)
	r.RecordStageLatency("risk_layer", 0.001)
	r.RecordLatency("kafka_publish", 0.002)
	r.RecordBufferDrain(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.signals.WithLabelValues("buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.assessments.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.orders.WithLabelValues("filled")))
	assert.Equal(t, 12.5, testutil.ToFloat64(r.exposure))
	assert.Equal(t, 41000.0, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTC/USD")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.drainSize))

	n, err := testutil.GatherAndCount(reg, "quantpipe_cycle_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorderRegistersOncePerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegisterer(reg)
	assert.Panics(t, func() { NewWithRegisterer(reg) })
}
