package worker

import (
	"context"
	"time"

	"github.com/rs/dnscache"
)

// DNSRefresher periodically refreshes a dnscache.Resolver so cached entries
// follow upstream DNS changes. Unused entries are evicted on each pass.
type DNSRefresher struct {
	resolver *dnscache.Resolver
	interval time.Duration
}

// NewDNSRefresher creates a DNSRefresher. A non-positive interval means 5m.
func NewDNSRefresher(resolver *dnscache.Resolver, interval time.Duration) *DNSRefresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &DNSRefresher{resolver: resolver, interval: interval}
}

// Name returns the worker identifier.
func (d *DNSRefresher) Name() string { return "dns_refresh" }

// Run refreshes the resolver on every tick until ctx is cancelled.
func (d *DNSRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.resolver.Refresh(true)
		case <-ctx.Done():
			return nil
		}
	}
}
