package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	catalog "github.com/eugener/libris/internal"
)

const selectKey = `SELECT id, key_hash, key_prefix, name, role, expires_at, blocked, last_used_at, created_at
	FROM api_keys`

// CreateKey inserts a new API key.
func (s *Store) CreateKey(ctx context.Context, key *catalog.APIKey) error {
	role := key.Role
	if role == "" {
		role = catalog.RoleUser
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, name, role, expires_at, blocked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.KeyHash, key.KeyPrefix, key.Name, role,
		key.ExpiresAt, key.Blocked, key.CreatedAt.UTC(),
	)
	return err
}

// GetKey retrieves an API key by its ID.
func (s *Store) GetKey(ctx context.Context, id string) (*catalog.APIKey, error) {
	return scanKey(s.pool.QueryRow(ctx, selectKey+` WHERE id = $1`, id))
}

// GetKeyByHash retrieves an API key by its SHA-256 hash.
func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*catalog.APIKey, error) {
	return scanKey(s.pool.QueryRow(ctx, selectKey+` WHERE key_hash = $1`, hash))
}

// ListKeys returns API keys, newest first.
func (s *Store) ListKeys(ctx context.Context, offset, limit int) ([]*catalog.APIKey, error) {
	rows, err := s.pool.Query(ctx, selectKey+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*catalog.APIKey, error) {
		return scanKey(row)
	})
}

// CountKeys returns the total number of API keys.
func (s *Store) CountKeys(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&n)
	return n, err
}

// DeleteKey removes an API key.
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag, "api key")
}

// TouchKeyUsed updates the last_used_at timestamp.
func (s *Store) TouchKeyUsed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at=$1 WHERE id=$2`, time.Now().UTC(), id)
	return err
}

func scanKey(row pgx.Row) (*catalog.APIKey, error) {
	var k catalog.APIKey
	err := row.Scan(&k.ID, &k.KeyHash, &k.KeyPrefix, &k.Name, &k.Role,
		&k.ExpiresAt, &k.Blocked, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return &k, nil
}
