package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	catalog "github.com/eugener/libris/internal"
)

// CreateAuthor inserts a new author and sets its ID.
func (s *Store) CreateAuthor(ctx context.Context, a *catalog.Author) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO authors (last_name, first_name) VALUES ($1, $2) RETURNING id`,
		a.LastName, a.FirstName,
	).Scan(&a.ID)
}

// GetAuthor retrieves an author with its books.
func (s *Store) GetAuthor(ctx context.Context, id int64) (*catalog.Author, error) {
	var a catalog.Author
	err := s.pool.QueryRow(ctx,
		`SELECT id, last_name, first_name FROM authors WHERE id = $1`, id,
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
	rows, err := s.pool.Query(ctx,
		`SELECT id, last_name, first_name FROM authors ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	authors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*catalog.Author, error) {
		var a catalog.Author
		err := row.Scan(&a.ID, &a.LastName, &a.FirstName)
		return &a, err
	})
	if err != nil {
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
	ids := make([]int64, len(authors))
	for i, a := range authors {
		a.Books = []*catalog.Book{}
		byID[a.ID] = a
		ids[i] = a.ID
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, cover_text, comment, author_id FROM books
		 WHERE author_id = ANY($1) ORDER BY id`, ids,
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
	tag, err := s.pool.Exec(ctx,
		`UPDATE authors SET last_name=$1, first_name=$2 WHERE id=$3`,
		a.LastName, a.FirstName, a.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag, "author")
}

// DeleteAuthor removes an author and its books in one transaction.
func (s *Store) DeleteAuthor(ctx context.Context, id int64) (int, error) {
	var removed int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM books WHERE author_id=$1`, id)
		if err != nil {
			return err
		}
		books := tag.RowsAffected()
		tag, err = tx.Exec(ctx, `DELETE FROM authors WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if err := checkRowsAffected(tag, "author"); err != nil {
			return err
		}
		removed = int(books)
		return nil
	})
	return removed, err
}
