package probe

import "context"

// Prober produces one cycle's samples for a set of targets. A target with no
// usable samples is simply absent from the result.
type Prober interface {
	Probe(ctx context.Context, targets []string) (SampleSeries, error)
}

// FpingProber runs the external fping pipeline: invoke the binary, then parse
// its combined output into per-target sample series.
type FpingProber struct {
	Runner Runner
	Count  int
}

func (p *FpingProber) Probe(ctx context.Context, targets []string) (SampleSeries, error) {
	output, err := p.Runner.Run(ctx, targets)
	if err != nil {
		return nil, err
	}
	return Parse(output, p.Count), nil
}
