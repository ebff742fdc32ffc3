// Package server implements the HTTP transport layer for the libris API.
package server

import (
	"context"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/app"
	"github.com/eugener/libris/internal/external"
	"github.com/eugener/libris/internal/ratelimit"
	"github.com/eugener/libris/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// DocumentFetcher relays an external document.
type DocumentFetcher interface {
	RepoDocument(ctx context.Context) (*external.Document, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth             catalog.Authenticator
	Catalog          *app.CatalogService
	Keys             *app.KeyManager     // nil = key routes not mounted
	External         DocumentFetcher     // nil = external routes not mounted
	Limiter          *ratelimit.Registry // nil = no rate limiting
	RateLimits       map[string]int64    // role -> requests per minute
	ReadyCheck       ReadyChecker        // nil = always ready (for tests)
	Metrics          *telemetry.Metrics  // nil = no request metrics
	MetricsHandler   http.Handler        // nil = no /metrics route
	DefaultVersion   string              // "" = version.Fallback
	DefaultPageLimit int                 // <= 0 = app.DefaultLimit
	MaxBodyBytes     int64               // <= 0 = 1 MB
}

// compressedTypes are the response types worth compressing.
var compressedTypes = []string{"application/json", "text/plain"}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.accessLog)
	if deps.Metrics != nil {
		r.Use(instrument(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Catalog API (auth required)
	r.Route("/api", func(r chi.Router) {
		r.Use(newCompressor().Handler)
		r.Use(s.authenticate)
		if deps.Limiter != nil {
			r.Use(s.rateLimit)
		}
		r.Use(s.negotiateVersion)

		r.Route("/authors", func(r chi.Router) {
			r.With(s.requirePerm(catalog.PermReadCatalog)).Get("/", s.handleListAuthors)
			r.With(s.requirePerm(catalog.PermReadCatalog)).Get("/{id}", s.handleGetAuthor)
			r.With(s.requirePerm(catalog.PermWriteCatalog)).Post("/", s.handleCreateAuthor)
			r.With(s.requirePerm(catalog.PermWriteCatalog)).Put("/{id}", s.handleUpdateAuthor)
			r.With(s.requirePerm(catalog.PermWriteCatalog)).Delete("/{id}", s.handleDeleteAuthor)
		})

		r.Route("/books", func(r chi.Router) {
			r.With(s.requirePerm(catalog.PermReadCatalog)).Get("/", s.handleListBooks)
			r.With(s.requirePerm(catalog.PermReadCatalog)).Get("/{id}", s.handleGetBook)
			r.With(s.requirePerm(catalog.PermWriteCatalog)).Post("/", s.handleCreateBook)
			r.With(s.requirePerm(catalog.PermWriteCatalog)).Put("/{id}", s.handleUpdateBook)
			r.With(s.requirePerm(catalog.PermWriteCatalog)).Delete("/{id}", s.handleDeleteBook)
		})

		r.With(s.requirePerm(catalog.PermManageCache)).Delete("/cache", s.handleCachePurge)

		if deps.Keys != nil {
			r.Route("/keys", func(r chi.Router) {
				r.Use(s.requirePerm(catalog.PermManageKeys))
				r.Get("/", s.handleListKeys)
				r.Post("/", s.handleCreateKey)
				r.Delete("/{id}", s.handleDeleteKey)
			})
		}

		if deps.External != nil {
			r.With(s.requirePerm(catalog.PermUseExternal)).Get("/external/getSfDoc", s.handleExternalDoc)
		}
	})

	return r
}

// newCompressor returns chi's compressor with a brotli encoder registered
// ahead of gzip and deflate.
func newCompressor() *middleware.Compressor {
	c := middleware.NewCompressor(5, compressedTypes...)
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return c
}

type server struct {
	deps Deps
}
