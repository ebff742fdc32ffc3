package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/dnscache"
)

func TestDNSRefresher_DefaultInterval(t *testing.T) {
	t.Parallel()
	d := NewDNSRefresher(&dnscache.Resolver{}, 0)
	if d.interval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", d.interval)
	}
	if d.Name() != "dns_refresh" {
		t.Errorf("name = %q", d.Name())
	}
}

func TestDNSRefresher_StopsOnCancel(t *testing.T) {
	t.Parallel()
	d := NewDNSRefresher(&dnscache.Resolver{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop after cancel")
	}
}
