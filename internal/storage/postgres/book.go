package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	catalog "github.com/eugener/libris/internal"
)

const selectBook = `SELECT b.id, b.title, b.cover_text, b.comment, b.author_id, a.last_name, a.first_name
	FROM books b LEFT JOIN authors a ON a.id = b.author_id`

// CreateBook inserts a new book and sets its ID.
func (s *Store) CreateBook(ctx context.Context, b *catalog.Book) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO books (title, cover_text, comment, author_id) VALUES ($1, $2, $3, $4) RETURNING id`,
		b.Title, b.CoverText, b.Comment, b.AuthorID,
	).Scan(&b.ID)
}

// GetBook retrieves a book with a summary of its author.
func (s *Store) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	return scanBook(s.pool.QueryRow(ctx, selectBook+` WHERE b.id = $1`, id))
}

// ListBooks returns a page of books ordered by ID.
func (s *Store) ListBooks(ctx context.Context, offset, limit int) ([]*catalog.Book, error) {
	rows, err := s.pool.Query(ctx, selectBook+` ORDER BY b.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*catalog.Book, error) {
		return scanBook(row)
	})
}

// UpdateBook updates an existing book, including its author relation.
func (s *Store) UpdateBook(ctx context.Context, b *catalog.Book) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE books SET title=$1, cover_text=$2, comment=$3, author_id=$4 WHERE id=$5`,
		b.Title, b.CoverText, b.Comment, b.AuthorID, b.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag, "book")
}

// DeleteBook removes a book.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM books WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag, "book")
}

func scanBook(row pgx.Row) (*catalog.Book, error) {
	var b catalog.Book
	var authorID *int64
	var lastName, firstName *string
	if err := row.Scan(&b.ID, &b.Title, &b.CoverText, &b.Comment, &authorID, &lastName, &firstName); err != nil {
		return nil, notFoundErr(err)
	}
	if authorID != nil {
		a := &catalog.Author{ID: *authorID}
		if lastName != nil {
			a.LastName = *lastName
		}
		if firstName != nil {
			a.FirstName = *firstName
		}
		b.SetAuthor(a)
	}
	return &b, nil
}
