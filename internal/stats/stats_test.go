package stats

import (
	"math"
	"testing"
)

func TestPercentile_Interpolates(t *testing.T) {
	t.Parallel()

	values := []float64{10, 20, 30, 40}
	if got := Percentile(values, 50); got != 25 {
		t.Fatalf("p50=%v", got)
	}
	if got := Percentile(values, 5); math.Abs(got-11.5) > 1e-9 {
		t.Fatalf("p5=%v", got)
	}
	if got := Percentile(values, 95); math.Abs(got-38.5) > 1e-9 {
		t.Fatalf("p95=%v", got)
	}
}

func TestPercentile_Edges(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4}
	if got := Percentile(values, 0); got != 1 {
		t.Fatalf("p0=%v", got)
	}
	if got := Percentile(values, 100); got != 4 {
		t.Fatalf("p100=%v", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Fatalf("empty=%v", got)
	}
}

func TestPercentile_SingleSample(t *testing.T) {
	t.Parallel()

	for _, p := range []float64{5, 50, 95} {
		if got := Percentile([]float64{12.3}, p); got != 12.3 {
			t.Fatalf("p%.0f=%v", p, got)
		}
	}
}

func TestPercentile_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	values := []float64{3, 1, 2}
	_ = Percentile(values, 50)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Fatalf("input mutated: %v", values)
	}
}

func TestAggregate_Basic(t *testing.T) {
	t.Parallel()

	m := Aggregate("8.8.8.8", []float64{12.3, 14.1, 12.8, 13.0}, 5)
	if m.Target != "8.8.8.8" {
		t.Fatalf("target=%q", m.Target)
	}
	if m.Sent != 5 || m.Received != 4 || m.Lost != 1 {
		t.Fatalf("sent/received/lost=%d/%d/%d", m.Sent, m.Received, m.Lost)
	}
	if m.LossPercent != 20 {
		t.Fatalf("loss=%v", m.LossPercent)
	}
	if m.P50 != 12.9 {
		t.Fatalf("p50=%v", m.P50)
	}
	if m.P5 == 0 || m.P95 == 0 {
		t.Fatalf("percentiles not set: %+v", m)
	}
}

func TestAggregate_NoSamples(t *testing.T) {
	t.Parallel()

	m := Aggregate("10.0.0.1", nil, 5)
	if m.P5 != 0 || m.P50 != 0 || m.P95 != 0 {
		t.Fatalf("percentiles=%v/%v/%v", m.P5, m.P50, m.P95)
	}
	if m.Received != 0 || m.Lost != 5 {
		t.Fatalf("received/lost=%d/%d", m.Received, m.Lost)
	}
	if m.LossPercent != 100 {
		t.Fatalf("loss=%v", m.LossPercent)
	}
}

func TestAggregate_MoreSamplesThanSent(t *testing.T) {
	t.Parallel()

	m := Aggregate("t", []float64{1, 2, 3}, 2)
	if m.Received != 2 || m.Lost != 0 {
		t.Fatalf("received/lost=%d/%d", m.Received, m.Lost)
	}
	if m.LossPercent != 0 {
		t.Fatalf("loss=%v", m.LossPercent)
	}
}
