package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fping-exporter/internal/stats"
)

const namespace = "fping"

// percentileLabels are the values published for the percentile dimension of
// the latency gauge.
var percentileLabels = []string{"p5", "p50", "p95"}

// Sink owns the exported metric families. Latency and loss gauges are
// overwritten every cycle; the packet counters only ever accumulate, so a
// concurrent single-target run and a full cycle can both publish safely.
type Sink struct {
	registry *prometheus.Registry

	latency  *prometheus.GaugeVec
	loss     *prometheus.GaugeVec
	sent     *prometheus.CounterVec
	received *prometheus.CounterVec
	lost     *prometheus.CounterVec

	loopDuration prometheus.Summary
	loopErrors   prometheus.Counter
	info         *prometheus.GaugeVec
}

// NewSink registers the exporter's metric families on reg.
func NewSink(reg *prometheus.Registry) *Sink {
	s := &Sink{
		registry: reg,
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_ms",
			Help:      "Latency percentiles in milliseconds from the last collection cycle",
		}, []string{"target", "percentile"}),
		loss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loss_percent",
			Help:      "Packet loss percentage from the last collection cycle",
		}, []string{"target"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total ICMP packets sent",
		}, []string{"target"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total ICMP packets received",
		}, []string{"target"}),
		lost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_lost_total",
			Help:      "Total ICMP packets lost",
		}, []string{"target"}),
		loopDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      "collector_loop_duration_seconds",
			Help:      "Duration of one collection cycle",
		}),
		loopErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_errors_total",
			Help:      "Total number of collection errors",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exporter_info",
			Help:      "Exporter build and vantage point details",
		}, []string{"public_ip", "nat_type", "version"}),
	}

	reg.MustRegister(
		s.latency,
		s.loss,
		s.sent,
		s.received,
		s.lost,
		s.loopDuration,
		s.loopErrors,
		s.info,
	)
	return s
}

// Publish writes one target's cycle metrics. Gauges are set to the latest
// values; the counters grow by this cycle's deltas.
func (s *Sink) Publish(m stats.TargetMetrics) {
	values := []float64{m.P5, m.P50, m.P95}
	for i, percentile := range percentileLabels {
		s.latency.WithLabelValues(m.Target, percentile).Set(values[i])
	}
	s.loss.WithLabelValues(m.Target).Set(m.LossPercent)

	s.sent.WithLabelValues(m.Target).Add(float64(m.Sent))
	s.received.WithLabelValues(m.Target).Add(float64(m.Received))
	if m.Lost > 0 {
		s.lost.WithLabelValues(m.Target).Add(float64(m.Lost))
	}
}

// Remove drops every series labeled with the target so decommissioned targets
// do not linger in the exposition output.
func (s *Sink) Remove(target string) {
	match := prometheus.Labels{"target": target}
	s.latency.DeletePartialMatch(match)
	s.loss.DeleteLabelValues(target)
	s.sent.DeleteLabelValues(target)
	s.received.DeleteLabelValues(target)
	s.lost.DeleteLabelValues(target)
}

// ObserveLoopDuration records one cycle's wall time.
func (s *Sink) ObserveLoopDuration(d time.Duration) {
	s.loopDuration.Observe(d.Seconds())
}

// IncErrors counts one collection error.
func (s *Sink) IncErrors() {
	s.loopErrors.Inc()
}

// SetInfo publishes the exporter's identity gauge. Each call replaces the
// previous series, so refining the vantage point after STUN discovery does
// not leave a stale label set behind.
func (s *Sink) SetInfo(publicIP, natType, version string) {
	s.info.Reset()
	s.info.WithLabelValues(publicIP, natType, version).Set(1)
}

// Handler serves the metrics exposition endpoint.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
