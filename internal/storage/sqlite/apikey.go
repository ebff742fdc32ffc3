package sqlite

import (
	"context"
	"database/sql"
	"time"

	catalog "github.com/eugener/libris/internal"
)

const keyColumns = `id, key_hash, key_prefix, name, role, expires_at, blocked, last_used_at, created_at`

// CreateKey inserts key. An empty role is stored as RoleUser.
func (s *Store) CreateKey(ctx context.Context, key *catalog.APIKey) error {
	role := key.Role
	if role == "" {
		role = catalog.RoleUser
	}
	name := sql.NullString{String: key.Name, Valid: key.Name != ""}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, name, role, expires_at, blocked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.KeyHash, key.KeyPrefix, name, role,
		nullTS(key.ExpiresAt), key.Blocked, formatTS(key.CreatedAt),
	)
	return err
}

func (s *Store) GetKey(ctx context.Context, id string) (*catalog.APIKey, error) {
	return s.keyWhere(ctx, "id", id)
}

// GetKeyByHash looks a key up by the SHA-256 hash of its plaintext.
func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*catalog.APIKey, error) {
	return s.keyWhere(ctx, "key_hash", hash)
}

// keyWhere is only called with constant column names.
func (s *Store) keyWhere(ctx context.Context, column, value string) (*catalog.APIKey, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE `+column+` = ?`, value)
	return scanKey(row)
}

// ListKeys pages through keys, newest first.
func (s *Store) ListKeys(ctx context.Context, offset, limit int) ([]*catalog.APIKey, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*catalog.APIKey, 0, limit)
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) CountKeys(ctx context.Context) (n int, err error) {
	err = s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&n)
	return n, err
}

func (s *Store) DeleteKey(ctx context.Context, id string) error {
	res, err := s.write.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "api key")
}

// TouchKeyUsed stamps last_used_at with the current time.
func (s *Store) TouchKeyUsed(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, formatTS(time.Now()), id)
	return err
}

func scanKey(row scanner) (*catalog.APIKey, error) {
	var (
		k                         catalog.APIKey
		name                      sql.NullString
		expires, used, createdStr sql.NullString
	)
	if err := row.Scan(&k.ID, &k.KeyHash, &k.KeyPrefix, &name, &k.Role,
		&expires, &k.Blocked, &used, &createdStr); err != nil {
		return nil, notFoundErr(err)
	}
	k.Name = name.String
	k.ExpiresAt = parseTS(expires)
	k.LastUsedAt = parseTS(used)
	if t := parseTS(createdStr); t != nil {
		k.CreatedAt = *t
	}
	return &k, nil
}
