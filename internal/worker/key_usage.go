package worker

import (
	"context"
	"log/slog"
	"time"
)

const (
	usageChanSize   = 1000
	usageBatchSize  = 100
	usageFlushEvery = 5 * time.Second
	usageDrainTime  = 10 * time.Second
)

// KeyToucher is the persistence interface consumed by KeyUsageRecorder.
type KeyToucher interface {
	TouchKeyUsed(ctx context.Context, id string) error
}

// KeyUsageRecorder buffers API key usages and writes last-used timestamps in
// batches. Repeated uses of one key within a batch collapse into one write.
// Usages are dropped if the channel is full.
type KeyUsageRecorder struct {
	ch    chan string
	store KeyToucher
}

// NewKeyUsageRecorder creates a KeyUsageRecorder backed by store.
func NewKeyUsageRecorder(store KeyToucher) *KeyUsageRecorder {
	return &KeyUsageRecorder{
		ch:    make(chan string, usageChanSize),
		store: store,
	}
}

// Name returns the worker identifier.
func (u *KeyUsageRecorder) Name() string { return "key_usage" }

// Record enqueues a key usage. It never blocks; drops on full channel.
func (u *KeyUsageRecorder) Record(keyID string) {
	select {
	case u.ch <- keyID:
	default:
		slog.Warn("key usage dropped, channel full")
	}
}

// Run processes usages until ctx is cancelled, then drains what is queued.
func (u *KeyUsageRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(usageFlushEvery)
	defer ticker.Stop()

	pending := make(map[string]struct{}, usageBatchSize)

	for {
		select {
		case id := <-u.ch:
			pending[id] = struct{}{}
			if len(pending) >= usageBatchSize {
				u.flush(ctx, pending)
			}

		case <-ticker.C:
			if len(pending) > 0 {
				u.flush(ctx, pending)
			}

		case <-ctx.Done():
			u.drain(pending)
			return nil
		}
	}
}

func (u *KeyUsageRecorder) drain(pending map[string]struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), usageDrainTime)
	defer cancel()

	for {
		select {
		case id := <-u.ch:
			pending[id] = struct{}{}
		default:
			if len(pending) > 0 {
				u.flush(ctx, pending)
			}
			return
		}
	}
}

// flush writes every pending key and empties the set.
func (u *KeyUsageRecorder) flush(ctx context.Context, pending map[string]struct{}) {
	failed := 0
	for id := range pending {
		if err := u.store.TouchKeyUsed(ctx, id); err != nil {
			failed++
			slog.LogAttrs(ctx, slog.LevelDebug, "touch key failed",
				slog.String("key_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if failed > 0 {
		slog.LogAttrs(ctx, slog.LevelWarn, "key usage flush incomplete",
			slog.Int("count", len(pending)),
			slog.Int("failed", failed),
		)
	}
	clear(pending)
}
