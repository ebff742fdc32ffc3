package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// blockingWorker runs fn, or blocks until cancelled when fn is nil.
type blockingWorker struct {
	name string
	fn   func(ctx context.Context) error
}

func (b *blockingWorker) Name() string { return b.name }

func (b *blockingWorker) Run(ctx context.Context) error {
	if b.fn != nil {
		return b.fn(ctx)
	}
	<-ctx.Done()
	return nil
}

type anonWorker struct{}

func (anonWorker) Run(context.Context) error { return nil }

func waitRunner(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
		return nil
	}
}

func TestRunner_StopsOnCancel(t *testing.T) {
	t.Parallel()
	var started atomic.Int32
	mk := func(name string) Worker {
		return &blockingWorker{name: name, fn: func(ctx context.Context) error {
			started.Add(1)
			<-ctx.Done()
			return nil
		}}
	}
	r := NewRunner(mk("a"), mk("b"), mk("c"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for started.Load() < 3 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := waitRunner(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunner_ErrorCancelsSiblings(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk full")
	r := NewRunner(
		&blockingWorker{name: "key_usage", fn: func(context.Context) error { return boom }},
		&blockingWorker{name: "dns_refresh"},
	)

	err := r.Run(t.Context())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "key_usage") {
		t.Errorf("err = %q, want worker name", err)
	}
}

func TestRunner_PanicBecomesError(t *testing.T) {
	t.Parallel()
	r := NewRunner(&blockingWorker{name: "flaky", fn: func(context.Context) error { panic("nil map") }})

	err := r.Run(t.Context())
	if err == nil || !strings.Contains(err.Error(), "flaky: panic: nil map") {
		t.Fatalf("err = %v", err)
	}
}

func TestWorkerName(t *testing.T) {
	t.Parallel()
	if got := workerName(NewKeyUsageRecorder(nil)); got != "key_usage" {
		t.Errorf("name = %q, want key_usage", got)
	}
	if got := workerName(anonWorker{}); got != "worker.anonWorker" {
		t.Errorf("name = %q, want worker.anonWorker", got)
	}
}
