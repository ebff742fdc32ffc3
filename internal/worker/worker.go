// Package worker runs the background tasks that support the catalog API:
// batched key usage writes, DNS cache refresh and rate limiter sweeps.
package worker

import "context"

// Worker is a long-running background task. Run returns nil once ctx is
// cancelled; any other return is treated as a failure of the whole group.
type Worker interface {
	Run(ctx context.Context) error
}

// Named workers report an identifier for logs and errors.
type Named interface {
	Name() string
}
