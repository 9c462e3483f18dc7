package stats

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// TargetMetrics is one cycle's derived statistics for a single target.
// Percentiles and loss percentage are snapshot values; Sent, Received and
// Lost are this cycle's deltas for the cumulative counters.
type TargetMetrics struct {
	Target      string
	P5          float64
	P50         float64
	P95         float64
	Sent        int
	Received    int
	Lost        int
	LossPercent float64
}

// Aggregate reduces one target's latency samples into metrics for the sink.
// An empty sample set means every probe went unanswered: percentiles stay
// zero and the whole batch counts as lost.
func Aggregate(target string, samples []float64, sent int) TargetMetrics {
	m := TargetMetrics{Target: target, Sent: sent}

	if len(samples) == 0 {
		m.Lost = sent
		if sent > 0 {
			m.LossPercent = 100
		}
		logrus.WithField("target", target).Warn("no latency samples this cycle, counting full loss")
		return m
	}

	m.P5 = Percentile(samples, 5)
	m.P50 = Percentile(samples, 50)
	m.P95 = Percentile(samples, 95)
	m.Received = len(samples)
	// A reply is only counted against a sent packet, so received never
	// exceeds sent and lost never goes negative.
	if m.Received > sent {
		m.Received = sent
	}
	m.Lost = sent - m.Received
	if sent > 0 {
		m.LossPercent = 100 * float64(m.Lost) / float64(sent)
	}
	return m
}

// Percentile returns the p-th percentile (0-100) of samples using linear
// interpolation between order statistics. Input is not modified.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
