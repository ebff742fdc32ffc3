package auth

import (
	"context"
	"net/http"
	"strings"

	catalog "github.com/eugener/libris/internal"
)

// Chain dispatches to the API key or JWT authenticator based on the token shape.
// A nil JWT authenticator disables JWT support.
type Chain struct {
	keys *APIKeyAuth
	jwt  *JWTAuth
}

// NewChain returns a Chain over keys and, optionally, jwt.
func NewChain(keys *APIKeyAuth, jwt *JWTAuth) *Chain {
	return &Chain{keys: keys, jwt: jwt}
}

// Authenticate implements catalog.Authenticator.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (*catalog.Identity, error) {
	raw := bearerToken(r)
	switch {
	case raw == "":
		return nil, catalog.ErrUnauthorized
	case strings.HasPrefix(raw, catalog.APIKeyPrefix):
		return c.keys.Authenticate(ctx, r)
	case c.jwt != nil && strings.Count(raw, ".") == 2:
		return c.jwt.Authenticate(ctx, r)
	default:
		return nil, catalog.ErrUnauthorized
	}
}

// InvalidateByKeyID evicts a revoked API key from the auth cache.
func (c *Chain) InvalidateByKeyID(keyID string) {
	c.keys.InvalidateByKeyID(keyID)
}
