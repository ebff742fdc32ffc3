package testutil

import (
	"context"
	"net/http"

	catalog "github.com/eugener/libris/internal"
)

// FakeAuth always authenticates successfully. The zero value is an admin;
// set Role to catalog.RoleUser for a read-only caller.
type FakeAuth struct {
	Role string
}

// Authenticate returns a test identity with the permissions of the configured role.
func (f FakeAuth) Authenticate(_ context.Context, _ *http.Request) (*catalog.Identity, error) {
	role := f.Role
	if role == "" {
		role = catalog.RoleAdmin
	}
	return &catalog.Identity{
		Subject:    "test",
		Role:       role,
		Perms:      catalog.RolePermissions[role],
		AuthMethod: "apikey",
	}, nil
}

// RejectAuth always rejects authentication.
type RejectAuth struct{}

// Authenticate always returns ErrUnauthorized.
func (RejectAuth) Authenticate(context.Context, *http.Request) (*catalog.Identity, error) {
	return nil, catalog.ErrUnauthorized
}
