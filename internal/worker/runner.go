package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner supervises a fixed set of workers. The first failure cancels the rest.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner over workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Run blocks until every worker has returned. A worker error or panic is
// reported with the worker's name and cancels its siblings.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := workerName(w)
		g.Go(func() error { return supervise(gctx, name, w) })
	}
	return g.Wait()
}

func supervise(ctx context.Context, name string, w Worker) (err error) {
	start := time.Now()
	slog.LogAttrs(ctx, slog.LevelInfo, "worker started", slog.String("worker", name))
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("worker %s: panic: %v", name, rec)
		}
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelError
		}
		slog.LogAttrs(context.Background(), level, "worker stopped",
			slog.String("worker", name),
			slog.Duration("uptime", time.Since(start)),
			slog.Any("error", err),
		)
	}()
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker %s: %w", name, err)
	}
	return nil
}

func workerName(w Worker) string {
	if n, ok := w.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", w)
}
