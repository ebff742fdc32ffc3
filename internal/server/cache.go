package server

import (
	"log/slog"
	"net/http"

	catalog "github.com/eugener/libris/internal"
)

// handleCachePurge drops every cached list page.
func (s *server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	s.deps.Catalog.PurgeCache(r.Context())
	subject := ""
	if id := catalog.IdentityFromContext(r.Context()); id != nil {
		subject = id.Subject
	}
	slog.LogAttrs(r.Context(), slog.LevelInfo, "list cache purged", slog.String("by", subject))
	w.WriteHeader(http.StatusNoContent)
}
