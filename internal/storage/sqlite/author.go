package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	catalog "github.com/eugener/libris/internal"
)

// CreateAuthor inserts a new author and sets its ID.
func (s *Store) CreateAuthor(ctx context.Context, a *catalog.Author) error {
	result, err := s.write.ExecContext(ctx,
		`INSERT INTO authors (last_name, first_name) VALUES (?, ?)`,
		a.LastName, a.FirstName,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// GetAuthor retrieves an author with its books.
func (s *Store) GetAuthor(ctx context.Context, id int64) (*catalog.Author, error) {
	var a catalog.Author
	err := s.read.QueryRowContext(ctx,
		`SELECT id, last_name, first_name FROM authors WHERE id = ?`, id,
	).Scan(&a.ID, &a.LastName, &a.FirstName)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if err := s.attachBooks(ctx, []*catalog.Author{&a}); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAuthors returns a page of authors ordered by ID, each with its books.
func (s *Store) ListAuthors(ctx context.Context, offset, limit int) ([]*catalog.Author, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, last_name, first_name FROM authors ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	authors := []*catalog.Author{}
	for rows.Next() {
		var a catalog.Author
		if err := rows.Scan(&a.ID, &a.LastName, &a.FirstName); err != nil {
			return nil, err
		}
		authors = append(authors, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachBooks(ctx, authors); err != nil {
		return nil, err
	}
	return authors, nil
}

// attachBooks loads the books of all authors with one query.
func (s *Store) attachBooks(ctx context.Context, authors []*catalog.Author) error {
	if len(authors) == 0 {
		return nil
	}
	byID := make(map[int64]*catalog.Author, len(authors))
	args := make([]any, len(authors))
	for i, a := range authors {
		a.Books = []*catalog.Book{}
		byID[a.ID] = a
		args[i] = a.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(authors)), ",")
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, title, cover_text, comment, author_id FROM books
		 WHERE author_id IN (`+placeholders+`) ORDER BY id`, args...,
	)
	if err != nil {
		return fmt.Errorf("load books: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b catalog.Book
		var authorID int64
		if err := rows.Scan(&b.ID, &b.Title, &b.CoverText, &b.Comment, &authorID); err != nil {
			return err
		}
		b.AuthorID = &authorID
		if a := byID[authorID]; a != nil {
			a.Books = append(a.Books, &b)
		}
	}
	return rows.Err()
}

// UpdateAuthor updates an existing author's fields.
func (s *Store) UpdateAuthor(ctx context.Context, a *catalog.Author) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE authors SET last_name=?, first_name=? WHERE id=?`,
		a.LastName, a.FirstName, a.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "author")
}

// DeleteAuthor removes an author and its books in one transaction.
func (s *Store) DeleteAuthor(ctx context.Context, id int64) (int, error) {
	var removed int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM books WHERE author_id=?`, id)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		result, err = tx.ExecContext(ctx, `DELETE FROM authors WHERE id=?`, id)
		if err != nil {
			return err
		}
		if err := checkRowsAffected(result, "author"); err != nil {
			return err
		}
		removed = int(n)
		return nil
	})
	return removed, err
}
