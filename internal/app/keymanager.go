// Package app implements the application services of the libris catalog API.
package app

import (
	"context"
	"time"
	"unicode/utf8"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/storage"
)

// KeyCache evicts revoked keys from an authentication cache.
type KeyCache interface {
	InvalidateByKeyID(keyID string)
}

// KeyManager mints, lists and revokes API keys.
type KeyManager struct {
	store storage.APIKeyStore
	cache KeyCache
}

// NewKeyManager returns a KeyManager backed by store. cache may be nil.
func NewKeyManager(store storage.APIKeyStore, cache KeyCache) *KeyManager {
	return &KeyManager{store: store, cache: cache}
}

// CreateKeyOpts describes a key to mint.
type CreateKeyOpts struct {
	Name      string
	Role      string
	ExpiresAt *time.Time
}

const maxKeyName = 255

// CreateKey mints a key, stores its hash and returns the plaintext with the
// stored record. The plaintext is not recoverable afterwards.
func (km *KeyManager) CreateKey(ctx context.Context, opts CreateKeyOpts) (string, *catalog.APIKey, error) {
	var v catalog.ValidationError
	if opts.Role != "" && !catalog.ValidRole(opts.Role) {
		v.Add("role", "The role must be admin or user")
	}
	if utf8.RuneCountInString(opts.Name) > maxKeyName {
		v.Add("name", "The name must be at most 255 characters")
	}
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(time.Now()) {
		v.Add("expires_at", "The expiry must be in the future")
	}
	if err := v.OrNil(); err != nil {
		return "", nil, err
	}

	plaintext := catalog.GenerateKey()
	key := catalog.NewAPIKey(plaintext, opts.Name, opts.Role, opts.ExpiresAt)
	if err := km.store.CreateKey(ctx, key); err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

// ListKeys returns a page of keys, newest first, and the total count.
func (km *KeyManager) ListKeys(ctx context.Context, p Page) ([]*catalog.APIKey, int, error) {
	keys, err := km.store.ListKeys(ctx, p.Offset(), p.Limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := km.store.CountKeys(ctx)
	if err != nil {
		return nil, 0, err
	}
	return keys, total, nil
}

// DeleteKey revokes the API key with the given ID and evicts it from the auth cache.
func (km *KeyManager) DeleteKey(ctx context.Context, id string) error {
	if err := km.store.DeleteKey(ctx, id); err != nil {
		return err
	}
	if km.cache != nil {
		km.cache.InvalidateByKeyID(id)
	}
	return nil
}
