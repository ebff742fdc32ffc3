package config

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/storage"
)

// Bootstrap makes sure every key listed under auth.keys exists in store.
// Keys are matched by hash, so running it again changes nothing.
func Bootstrap(ctx context.Context, cfg *Config, store storage.APIKeyStore) error {
	for _, entry := range cfg.Auth.Keys {
		if entry.Key == "" {
			continue
		}
		created, err := seedKey(ctx, store, entry)
		if err != nil {
			return fmt.Errorf("bootstrap key %q: %w", entry.Name, err)
		}
		if created != nil {
			slog.LogAttrs(ctx, slog.LevelInfo, "api key seeded",
				slog.String("name", created.Name),
				slog.String("prefix", created.KeyPrefix),
				slog.String("role", created.Role),
			)
		}
	}
	return nil
}

// seedKey inserts entry unless its hash is already stored. It returns the
// new key, or nil when nothing was written.
func seedKey(ctx context.Context, store storage.APIKeyStore, entry KeyEntry) (*catalog.APIKey, error) {
	role := cmp.Or(entry.Role, catalog.RoleUser)
	if !catalog.ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	hash := catalog.HashKey(entry.Key)
	switch _, err := store.GetKeyByHash(ctx, hash); {
	case err == nil:
		return nil, nil
	case !errors.Is(err, catalog.ErrNotFound):
		return nil, err
	}

	key := catalog.NewAPIKey(entry.Key, entry.Name, role, nil)
	if err := store.CreateKey(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}
