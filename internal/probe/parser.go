package probe

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// SampleSeries maps a target address to its ordered round-trip samples in
// milliseconds for one collection cycle. A missing key means the target
// produced no usable samples and counts as total loss downstream.
type SampleSeries map[string][]float64

var (
	numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	// seqRe classifies a verbose per-packet record by the "[n]," sequence
	// prefix. Classification must not depend on the record carrying a timing:
	// a timed-out packet has none, and its running average and loss figures
	// must never be mistaken for samples.
	seqRe = regexp.MustCompile(`^\[\d+\],`)
	// packetRe extracts the round-trip time from a per-packet record, e.g.
	// "[0], 84 bytes, 12.3 ms (12.3 avg, 0% loss)". Only the value carrying
	// the ms unit is the timing; sequence numbers and byte counts must not
	// leak into the series.
	packetRe = regexp.MustCompile(`^\[\d+\],.*?(-?\d+(?:\.\d+)?) ms`)
)

// summaryMarkers flag fping summary lines that carry aggregate statistics
// rather than per-packet timings.
var summaryMarkers = []string{"xmt/rcv/%loss", "min/avg/max"}

// Parse extracts per-target RTT samples from combined fping output.
//
// Two line shapes are recognized after the "target : " prefix. The quiet -C
// epilogue is a run of per-packet timings where "-" marks a lost packet
// ("12.3 14.1 - 12.8"); it replaces anything previously seen for the target.
// Verbose per-packet records ("[0], 84 bytes, 12.3 ms ...") each append a
// single timing; a timed-out record ("[1], timed out ...") appends nothing.
// Everything else is skipped: blank lines, summary lines, lines without a
// colon, and garbled fragments containing "=" with fewer than two numeric
// tokens. Series are capped at the trailing count samples; a malformed line
// never aborts the parse.
func Parse(output string, count int) SampleSeries {
	series := make(SampleSeries)

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || isSummaryLine(line) {
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		target := strings.TrimSpace(line[:idx])
		tail := strings.TrimSpace(line[idx+1:])
		if target == "" || tail == "" {
			continue
		}

		if seqRe.MatchString(tail) {
			if m := packetRe.FindStringSubmatch(tail); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					series[target] = append(series[target], v)
				}
			}
			// No ms value means the packet timed out; it is simply lost.
			continue
		}

		tokens := numberRe.FindAllString(tail, -1)
		if strings.Contains(tail, "=") && len(tokens) < 2 {
			logrus.WithField("line", line).Debug("skipping unparseable probe line")
			continue
		}

		samples := make([]float64, 0, len(tokens))
		for _, tok := range tokens {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				logrus.WithField("token", tok).Debug("skipping unparseable sample")
				continue
			}
			samples = append(samples, v)
		}
		if len(samples) == 0 {
			continue
		}
		// Last write wins when a target shows up on more than one line.
		series[target] = samples
	}

	for target, samples := range series {
		if count > 0 && len(samples) > count {
			series[target] = samples[len(samples)-count:]
		}
	}

	return series
}

func isSummaryLine(line string) bool {
	for _, marker := range summaryMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
