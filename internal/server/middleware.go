package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/version"
)

// recovery turns a handler panic into a sanitized 500 and logs the value.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.LogAttrs(r.Context(), slog.LevelError, "handler panic",
				slog.Any("panic", rec),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", catalog.RequestIDFromContext(r.Context())),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse(errTypeInternal, "internal error"))
		}()
		next.ServeHTTP(w, r)
	})
}

// Header names used with direct map access are already canonical, which
// skips the canonicalization Header.Get and Header.Set perform.
const requestIDHeader = "X-Request-Id"

// requestID propagates the caller's X-Request-Id or mints a UUIDv7, and
// echoes it on the response.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if v := r.Header[requestIDHeader]; len(v) > 0 && v[0] != "" {
			id = v[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header()[requestIDHeader] = []string{id}
		next.ServeHTTP(w, r.WithContext(catalog.ContextWithRequestID(r.Context(), id)))
	})
}

// accessLog writes one line per request once the handler returns.
func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := acquireStatusWriter(w)
		defer releaseStatusWriter(sw)

		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		if sw.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.LogAttrs(r.Context(), level, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("bytes", sw.written),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", catalog.RequestIDFromContext(r.Context())),
		)
	})
}

// authenticate resolves the caller and attaches its Identity. Failures end
// the request with 401 or 403.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.deps.Auth.Authenticate(r.Context(), r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, withContext(r, catalog.ContextWithIdentity(r.Context(), identity)))
	})
}

// requirePerm rejects callers whose identity lacks perm with 403.
func (s *server) requirePerm(perm catalog.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := catalog.IdentityFromContext(r.Context())
			if identity == nil || !identity.Can(perm) {
				writeError(w, r, catalog.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Rate limit headers in canonical form, see requestIDHeader.
const (
	rateLimitHeader     = "X-Ratelimit-Limit"
	rateRemainingHeader = "X-Ratelimit-Remaining"
	retryAfterHeader    = "Retry-After"
)

// rateLimit applies the per-role request budget to the authenticated caller.
// API keys are limited individually; JWT callers by subject.
func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := catalog.IdentityFromContext(r.Context())
		if identity == nil {
			next.ServeHTTP(w, r)
			return
		}
		rpm := s.deps.RateLimits[identity.Role]
		key := identity.KeyID
		if key == "" {
			key = identity.AuthMethod + ":" + identity.Subject
		}

		res := s.deps.Limiter.Allow(key, rpm)
		if res.Limit > 0 {
			h := w.Header()
			h[rateLimitHeader] = []string{strconv.FormatInt(res.Limit, 10)}
			h[rateRemainingHeader] = []string{strconv.FormatInt(res.Remaining, 10)}
		}
		if !res.Allowed {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordRateLimited(identity.Role)
			}
			w.Header()[retryAfterHeader] = []string{strconv.FormatInt(res.RetryAfterSeconds(), 10)}
			writeJSON(w, http.StatusTooManyRequests, errorResponse(errTypeRateLimit, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// versionHeader echoes the negotiated representation version.
const versionHeader = "X-Api-Version"

// negotiateVersion resolves the version parameter of the Accept header,
// stores it in the context and echoes it in X-Api-Version.
func (s *server) negotiateVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := version.Resolve(r.Header.Get("Accept"), s.deps.DefaultVersion)
		w.Header()[versionHeader] = []string{v}
		next.ServeHTTP(w, withContext(r, catalog.ContextWithVersion(r.Context(), v)))
	})
}

// withContext avoids copying r when ctx is unchanged, which is the case
// when the value was stored in request meta already present in the context.
func withContext(r *http.Request, ctx context.Context) *http.Request {
	if ctx == r.Context() {
		return r
	}
	return r.WithContext(ctx)
}
