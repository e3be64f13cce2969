// Package telemetry exposes a session's runtime counters as
// Prometheus metrics. It replaces the teacher's hand-rolled
// metrics.go/metrics_collector.go/health_monitor.go JSON-dashboard
// trio — the teacher declared prometheus/client_golang in go.mod but
// never imported it anywhere in pkg/rtp; this package is where that
// dependency finally gets a real, exercised home, matching how
// opd-ai-toxcore's and SilvaMendes-go-rtpengine's peers in the
// retrieved corpus expose metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of instruments one Session registers. Callers
// typically construct one per process (via NewRegistry) and pass
// per-session label values on each observation, rather than one
// instrument set per session, to keep cardinality bounded.
type Metrics struct {
	PacketsSent       *prometheus.CounterVec
	PacketsReceived   *prometheus.CounterVec
	BytesSent         *prometheus.CounterVec
	BytesReceived     *prometheus.CounterVec
	PacketsLost       *prometheus.GaugeVec
	Jitter            *prometheus.GaugeVec
	RoundTripTime     *prometheus.GaugeVec
	RetransmitsSent   *prometheus.CounterVec
	RetransmitsDropped *prometheus.CounterVec
	ActiveMembers     *prometheus.GaugeVec
	RTCPIntervalSecs  *prometheus.HistogramVec
}

// NewMetrics constructs and registers every instrument against reg.
// sessionLabel names the label key used to distinguish sessions
// (callers typically pass "mid" or "cname").
func NewMetrics(reg prometheus.Registerer, sessionLabel string) *Metrics {
	labels := []string{sessionLabel}

	m := &Metrics{
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsession",
			Name:      "packets_sent_total",
			Help:      "RTP packets transmitted.",
		}, labels),
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsession",
			Name:      "packets_received_total",
			Help:      "RTP packets accepted by MemberDb.",
		}, labels),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsession",
			Name:      "bytes_sent_total",
			Help:      "RTP payload bytes transmitted.",
		}, labels),
		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsession",
			Name:      "bytes_received_total",
			Help:      "RTP payload bytes received.",
		}, labels),
		PacketsLost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtpsession",
			Name:      "packets_lost_cumulative",
			Help:      "Cumulative packets lost as last reported by RFC 3550 Appendix A.3.",
		}, append(labels, "ssrc")),
		Jitter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtpsession",
			Name:      "jitter_timestamp_units",
			Help:      "RFC 3550 Appendix A.8 interarrival jitter estimate.",
		}, append(labels, "ssrc")),
		RoundTripTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtpsession",
			Name:      "round_trip_time_seconds",
			Help:      "RTCP SR/RR-derived round-trip time estimate.",
		}, labels),
		RetransmitsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsession",
			Name:      "rtx_sent_total",
			Help:      "RFC 4588 retransmission packets sent.",
		}, labels),
		RetransmitsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsession",
			Name:      "rtx_expired_total",
			Help:      "NACKs that could not be satisfied because the buffer had already evicted the packet.",
		}, labels),
		ActiveMembers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtpsession",
			Name:      "active_members",
			Help:      "Current MemberDb size, including the local participant.",
		}, labels),
		RTCPIntervalSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rtpsession",
			Name:      "rtcp_interval_seconds",
			Help:      "Observed interval between compound RTCP transmissions.",
			Buckets:   []float64{0.5, 1, 2, 2.5, 5, 10, 30, 60},
		}, labels),
	}

	reg.MustRegister(
		m.PacketsSent, m.PacketsReceived, m.BytesSent, m.BytesReceived,
		m.PacketsLost, m.Jitter, m.RoundTripTime,
		m.RetransmitsSent, m.RetransmitsDropped, m.ActiveMembers, m.RTCPIntervalSecs,
	)
	return m
}

// NewRegistry returns a fresh prometheus.Registry, for callers that
// don't want to share the global DefaultRegisterer across sessions in
// the same process.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
