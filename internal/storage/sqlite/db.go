// Package sqlite is the default catalog backend: one database file, pure-Go
// driver (modernc.org/sqlite), schema managed by goose.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"runtime"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/eugener/libris/internal/storage"
)

//go:embed migrations/*.sql
var schema embed.FS

var _ storage.Store = (*Store)(nil)

// pragmas applied to every connection. foreign_keys is required for the
// books.author_id cascade.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// Store keeps writes on one connection so SQLite never sees competing
// writers, and serves reads from a separate pool.
type Store struct {
	write *sql.DB
	read  *sql.DB
}

// New opens dsn (a file path or ":memory:"), migrates it to the latest
// schema and returns the store.
func New(dsn string) (*Store, error) {
	source := dataSource(dsn)

	write, err := openPool(source, 1)
	if err != nil {
		return nil, fmt.Errorf("sqlite: writer: %w", err)
	}
	read, err := openPool(source, max(4, runtime.NumCPU()))
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("sqlite: readers: %w", err)
	}

	s := &Store{write: write, read: read}
	if err := s.migrate(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

// dataSource builds the driver URI. An in-memory database uses a shared
// cache so the reader pool sees the writer's data.
func dataSource(dsn string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	if dsn == ":memory:" {
		return "file::memory:?mode=memory&cache=shared&" + q.Encode()
	}
	return "file:" + dsn + "?" + q.Encode()
}

func openPool(source string, conns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", source)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(conns)
	return db, nil
}

func (s *Store) migrate(ctx context.Context) error {
	root, err := fs.Sub(schema, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, s.write, root)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

// withTx runs fn in a transaction on the writer and commits when fn
// returns nil.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// Ping checks both pools.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.write.PingContext(ctx); err != nil {
		return err
	}
	return s.read.PingContext(ctx)
}

// Close releases both pools.
func (s *Store) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}
