package worker

import (
	"context"
	"log/slog"
	"time"
)

// StaleEvicter drops state idle since before a cutoff.
type StaleEvicter interface {
	EvictStale(cutoff time.Time) int
}

// LimiterSweeper periodically evicts idle rate limit buckets so the registry
// does not grow with every caller ever seen.
type LimiterSweeper struct {
	target   StaleEvicter
	interval time.Duration
	idle     time.Duration
}

// NewLimiterSweeper creates a LimiterSweeper that runs every interval and
// evicts buckets unused for idle. Non-positive values mean 1m and 10m.
func NewLimiterSweeper(target StaleEvicter, interval, idle time.Duration) *LimiterSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &LimiterSweeper{target: target, interval: interval, idle: idle}
}

// Name returns the worker identifier.
func (s *LimiterSweeper) Name() string { return "limiter_sweep" }

// Run sweeps on every tick until ctx is cancelled.
func (s *LimiterSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := s.target.EvictStale(now.Add(-s.idle)); n > 0 {
				slog.Debug("rate limiters evicted", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
