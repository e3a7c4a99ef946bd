package replicate

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/wzshiming/s3gw/pkg/storage"
)

// latencyProbes is the number of HeadBucket round trips sampled per
// backend during primary election.
const latencyProbes = 10

// ElectPrimary probes every backend and returns the index of the one
// with the lowest median HeadBucket latency. A backend is excluded only
// when all of its probes fail; if every backend is excluded, the first
// one wins.
func ElectPrimary(ctx context.Context, backends []storage.Backend, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	best := 0
	bestLatency := time.Duration(-1)
	for i, b := range backends {
		latency, err := probeLatency(ctx, b)
		if err != nil {
			logger.Warn("latency probe failed", "backend", b.Name(), "error", err)
			continue
		}
		logger.Info("latency probe", "backend", b.Name(), "median", latency)
		if bestLatency < 0 || latency < bestLatency {
			best = i
			bestLatency = latency
		}
	}

	return best
}

// probeLatency samples HeadBucket latencyProbes times and returns the
// median of the successful round trips. Failed probes are skipped.
func probeLatency(ctx context.Context, b storage.Backend) (time.Duration, error) {
	samples := make([]time.Duration, 0, latencyProbes)
	for i := 0; i < latencyProbes; i++ {
		start := time.Now()
		if err := b.HeadBucket(ctx); err != nil {
			continue
		}
		samples = append(samples, time.Since(start))
	}
	if len(samples) == 0 {
		return 0, errors.New("all probes failed")
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return samples[len(samples)/2], nil
}
