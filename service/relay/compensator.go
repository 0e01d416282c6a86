package relay

import (
	"context"
	"fmt"
	"time"
)

// MeasureRoundTrip times one health probe against ep.
func MeasureRoundTrip(ctx context.Context, ep Endpoint) (time.Duration, error) {
	start := time.Now()
	if err := ep.Health(ctx); err != nil {
		return 0, fmt.Errorf("failed to probe health of %s: %w", ep.Name(), err)
	}
	return time.Since(start), nil
}

// Compensate splits the round-trip difference between two endpoints so both
// submissions reach the network at about the same time. Half of |rttA-rttB| is
// assigned to the endpoint with the smaller round trip; the other delay is zero.
// Paths are assumed symmetric and latency static until dispatch.
func Compensate(rttA, rttB time.Duration) (delayA, delayB time.Duration) {
	diff := rttA - rttB
	if diff < 0 {
		diff = -diff
	}
	half := diff / 2

	switch {
	case rttA > rttB:
		return 0, half
	case rttB > rttA:
		return half, 0
	default:
		return 0, 0
	}
}
