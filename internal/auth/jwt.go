package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	catalog "github.com/eugener/libris/internal"
)

// Claims are the JWT claims understood by JWTAuth.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth validates HS256 bearer tokens signed with a shared secret.
type JWTAuth struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTAuth returns a JWT authenticator. When issuer is non-empty the iss
// claim must match it.
func NewJWTAuth(secret, issuer string) (*JWTAuth, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTAuth{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}, nil
}

// Authenticate validates the Bearer JWT and returns the caller's Identity.
func (a *JWTAuth) Authenticate(_ context.Context, r *http.Request) (*catalog.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, catalog.ErrUnauthorized
	}

	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrUnauthorized, err)
	}
	if !catalog.ValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", catalog.ErrUnauthorized, claims.Role)
	}
	return &catalog.Identity{
		Subject:    claims.Subject,
		Role:       claims.Role,
		Perms:      catalog.RolePermissions[claims.Role],
		AuthMethod: "jwt",
	}, nil
}

// Issue signs a token for subject with the given role and lifetime.
func (a *JWTAuth) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
