// Package auth authenticates catalog API callers.
//
// Two credential kinds are accepted as Bearer tokens: "lib_"-prefixed API keys,
// validated against the store and cached in a W-TinyLFU cache, and HS256 JWTs
// carrying a role claim. Chain picks the authenticator by token shape.
package auth

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/storage"
)

const (
	// Revocations made on another instance show up within cacheTTL.
	cacheTTL    = 30 * time.Second
	cacheMaxLen = 10_000
	touchTTL    = 5 * time.Second
)

// UsageRecorder takes note that a key was used. Record must not block.
type UsageRecorder interface {
	Record(keyID string)
}

// APIKeyAuth accepts "lib_" bearer keys. Keys are looked up by hash and
// kept in a bounded cache; concurrent misses on one key share a single
// store read.
type APIKeyAuth struct {
	store  storage.APIKeyStore
	cache  *otter.Cache[string, *catalog.APIKey]
	loader otter.Loader[string, *catalog.APIKey]
	hashes sync.Map // key ID -> hash, for revocation
	usage  UsageRecorder
	now    func() time.Time
}

// Option configures an APIKeyAuth.
type Option func(*APIKeyAuth)

// WithUsageRecorder hands last-used bookkeeping to r. Without one, each
// store load touches the key from its own goroutine.
func WithUsageRecorder(r UsageRecorder) Option {
	return func(a *APIKeyAuth) { a.usage = r }
}

func NewAPIKeyAuth(store storage.APIKeyStore, opts ...Option) (*APIKeyAuth, error) {
	c, err := otter.New(&otter.Options[string, *catalog.APIKey]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *catalog.APIKey](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("auth: key cache: %w", err)
	}
	a := &APIKeyAuth{store: store, cache: c, now: time.Now}
	a.loader = otter.LoaderFunc[string, *catalog.APIKey](a.load)
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// bearerToken returns the token of an "Authorization: Bearer" header, or "".
func bearerToken(r *http.Request) string {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw)
}

// Authenticate resolves the bearer key to an Identity. Unknown keys are
// ErrUnauthorized; blocked and expired keys get their own errors.
func (a *APIKeyAuth) Authenticate(ctx context.Context, r *http.Request) (*catalog.Identity, error) {
	raw := bearerToken(r)
	if !strings.HasPrefix(raw, catalog.APIKeyPrefix) {
		return nil, catalog.ErrUnauthorized
	}
	hash := catalog.HashKey(raw)

	key, err := a.cache.Get(ctx, hash, a.loader)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return nil, catalog.ErrUnauthorized
	case err != nil:
		return nil, err
	case key.Blocked:
		return nil, catalog.ErrKeyBlocked
	case key.ExpiresAt != nil && key.ExpiresAt.Before(a.now()):
		a.cache.Invalidate(hash)
		return nil, catalog.ErrKeyExpired
	}

	if a.usage != nil {
		a.usage.Record(key.ID)
	}
	return buildIdentity(key), nil
}

// load reads a key from the store on a cache miss. Errors are not cached.
func (a *APIKeyAuth) load(ctx context.Context, hash string) (*catalog.APIKey, error) {
	key, err := a.store.GetKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	a.hashes.Store(key.ID, hash)
	if a.usage == nil && !key.Blocked {
		go a.touch(context.WithoutCancel(ctx), key.ID)
	}
	return key, nil
}

func (a *APIKeyAuth) touch(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, touchTTL)
	defer cancel()
	if err := a.store.TouchKeyUsed(ctx, id); err != nil {
		slog.LogAttrs(ctx, slog.LevelDebug, "touch key failed",
			slog.String("key_id", id), slog.String("error", err.Error()))
	}
}

// InvalidateByKeyID drops a revoked key from the cache.
func (a *APIKeyAuth) InvalidateByKeyID(keyID string) {
	if hash, ok := a.hashes.LoadAndDelete(keyID); ok {
		a.cache.Invalidate(hash.(string))
	}
}

// buildIdentity maps a key to its caller. An empty role means RoleUser;
// unknown roles carry no permissions.
func buildIdentity(key *catalog.APIKey) *catalog.Identity {
	role := cmp.Or(key.Role, catalog.RoleUser)
	return &catalog.Identity{
		Subject:    key.KeyPrefix,
		KeyID:      key.ID,
		Role:       role,
		Perms:      catalog.RolePermissions[role],
		AuthMethod: "apikey",
	}
}
