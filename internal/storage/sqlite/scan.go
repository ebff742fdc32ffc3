package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	catalog "github.com/eugener/libris/internal"
)

// Timestamps are stored as RFC 3339 text in UTC.
const tsLayout = time.RFC3339

// scanner is *sql.Row or *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func notFoundErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ErrNotFound
	}
	return err
}

// checkRowsAffected reports ErrNotFound when a by-id write touched nothing.
func checkRowsAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	switch {
	case err != nil:
		return err
	case n == 0:
		return fmt.Errorf("%s: %w", entity, catalog.ErrNotFound)
	}
	return nil
}

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func nullTS(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTS(*t), Valid: true}
}

// parseTS returns nil for NULL or unparseable text.
func parseTS(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	if t, err := time.Parse(tsLayout, ns.String); err == nil {
		return &t
	}
	return nil
}
