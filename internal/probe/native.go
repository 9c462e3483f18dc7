package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// nativeConcurrency bounds how many targets are pinged at once; each target
// gets its own socket.
const nativeConcurrency = 16

// NativeProber sends ICMP echo requests in-process instead of spawning fping.
// Unprivileged mode uses UDP datagram sockets and needs net.ipv4.ping_group_range
// to cover the process; privileged mode needs CAP_NET_RAW.
type NativeProber struct {
	Count      int
	Timeout    time.Duration
	Privileged bool
}

func (n *NativeProber) Probe(ctx context.Context, targets []string) (SampleSeries, error) {
	series := make(SampleSeries)
	if len(targets) == 0 {
		return series, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(nativeConcurrency)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			samples, err := n.pingTarget(ctx, target)
			if err != nil {
				// One unreachable target must not sink the batch; it just
				// stays absent from the series.
				logrus.WithError(err).WithField("target", target).Debug("native probe failed")
				return nil
			}
			if len(samples) == 0 {
				return nil
			}
			mu.Lock()
			series[target] = samples
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return series, nil
}

func (n *NativeProber) pingTarget(ctx context.Context, target string) ([]float64, error) {
	p, err := probing.NewPinger(target)
	if err != nil {
		return nil, err
	}
	p.SetPrivileged(n.Privileged)
	p.Count = n.Count
	p.Timeout = n.Timeout

	if err := p.RunWithContext(ctx); err != nil {
		return nil, err
	}

	st := p.Statistics()
	samples := make([]float64, 0, len(st.Rtts))
	for _, rtt := range st.Rtts {
		samples = append(samples, float64(rtt.Microseconds())/1000.0)
	}
	return samples, nil
}
