package collector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fping-exporter/internal/metrics"
	"fping-exporter/internal/probe"
	"fping-exporter/internal/registry"
	"fping-exporter/internal/stats"
)

// Collector drives the periodic pipeline: snapshot the registry, probe every
// target, aggregate the samples and publish them to the sink.
type Collector struct {
	prober   probe.Prober
	registry *registry.Registry
	sink     *metrics.Sink
	count    int
	interval time.Duration
}

func New(prober probe.Prober, reg *registry.Registry, sink *metrics.Sink, count int, interval time.Duration) *Collector {
	return &Collector{
		prober:   prober,
		registry: reg,
		sink:     sink,
		count:    count,
		interval: interval,
	}
}

// Run executes collection cycles until ctx is done, starting with an
// immediate cycle so metrics exist before the first interval elapses. Cycle
// failures degrade that cycle's metrics and never stop the loop.
func (c *Collector) Run(ctx context.Context) error {
	logrus.WithField("interval", c.interval.String()).Info("collection loop started")

	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("collection loop stopped")
			return ctx.Err()
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// CollectOne runs the pipeline for a single target so a fresh registration
// has metrics before the next scheduled cycle. Counter publishes are additive
// and gauges last-write-wins, so overlapping with a full cycle is safe.
func (c *Collector) CollectOne(ctx context.Context, target string) {
	series := c.probeTargets(ctx, []string{target})
	c.sink.Publish(stats.Aggregate(target, series[target], c.count))
}

// collect runs one full cycle. Panics are contained here: a bad cycle is
// logged and counted, and the loop carries on at the next tick.
func (c *Collector) collect(ctx context.Context) {
	start := time.Now()
	defer func() { c.sink.ObserveLoopDuration(time.Since(start)) }()
	defer func() {
		if rec := recover(); rec != nil {
			c.sink.IncErrors()
			logrus.WithField("panic", rec).Error("collection cycle panicked")
		}
	}()

	targets := c.registry.List()
	if len(targets) == 0 {
		logrus.Debug("no targets registered, skipping cycle")
		return
	}

	series := c.probeTargets(ctx, targets)
	for _, target := range targets {
		c.sink.Publish(stats.Aggregate(target, series[target], c.count))
	}

	logrus.WithFields(logrus.Fields{
		"targets":  len(targets),
		"duration": time.Since(start).String(),
	}).Debug("collection cycle finished")
}

// probeTargets runs the prober and degrades timeouts and failures to an
// empty series, so every requested target aggregates as full loss.
func (c *Collector) probeTargets(ctx context.Context, targets []string) probe.SampleSeries {
	series, err := c.prober.Probe(ctx, targets)
	if err != nil {
		c.sink.IncErrors()
		logrus.WithError(err).Error("probe batch failed, treating all targets as lost")
		return probe.SampleSeries{}
	}
	return series
}
