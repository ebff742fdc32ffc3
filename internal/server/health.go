package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// readyTimeout bounds a readiness probe so a hung dependency reports
// not-ready instead of hanging the probe.
const readyTimeout = 2 * time.Second

var plainCT = []string{"text/plain; charset=utf-8"}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// handleHealthz reports liveness only.
func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writePlain(w, http.StatusOK, "ok")
}

// handleReadyz reports whether the store and cache answer.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck == nil {
		writePlain(w, http.StatusOK, "ok")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.deps.ReadyCheck(ctx); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "not ready", slog.String("error", err.Error()))
		writePlain(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writePlain(w, http.StatusOK, "ok")
}
