package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"os"
)

// Weight scores the outcome of an upstream call for Record. A transport
// error counts fully and a timeout counts extra. Throttling counts half.
// Other 4xx responses are the caller's problem and count as success.
func Weight(status int, err error) float64 {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			return 1.5
		}
		return 1
	}
	switch {
	case status == http.StatusTooManyRequests:
		return 0.5
	case status >= 500:
		return 1
	default:
		return 0
	}
}
