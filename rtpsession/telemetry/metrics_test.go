package telemetry

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAllInstruments(t *testing.T) {
	reg := NewRegistry()
	m := NewMetrics(reg, "cname")
	require.NotNil(t, m)

	m.PacketsSent.WithLabelValues("alice@example.com").Inc()
	m.BytesSent.WithLabelValues("alice@example.com").Add(188)
	m.PacketsLost.WithLabelValues("alice@example.com", "3735928559").Set(4)
	m.Jitter.WithLabelValues("alice@example.com", "3735928559").Set(12.5)

	count := testutil.CollectAndCount(reg,
		"rtpsession_packets_sent_total",
		"rtpsession_bytes_sent_total",
		"rtpsession_packets_lost_cumulative",
		"rtpsession_jitter_timestamp_units",
	)
	assert.Equal(t, 4, count)

	got, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got, 4)
}

func TestNewMetricsPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "cname")
	assert.Panics(t, func() { NewMetrics(reg, "cname") })
}

func TestRTCPIntervalHistogramObservesSample(t *testing.T) {
	reg := NewRegistry()
	m := NewMetrics(reg, "cname")
	m.RTCPIntervalSecs.WithLabelValues("bob@example.com").Observe(2.6)
	m.RTCPIntervalSecs.WithLabelValues("bob@example.com").Observe(5.1)

	metric := &dto.Metric{}
	require.NoError(t, m.RTCPIntervalSecs.WithLabelValues("bob@example.com").(prometheus.Histogram).Write(metric))
	assert.EqualValues(t, 2, metric.GetHistogram().GetSampleCount())
	assert.InDelta(t, 7.7, metric.GetHistogram().GetSampleSum(), 1e-9)
}
