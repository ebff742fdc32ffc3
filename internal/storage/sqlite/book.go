package sqlite

import (
	"context"
	"database/sql"

	catalog "github.com/eugener/libris/internal"
)

const selectBook = `SELECT b.id, b.title, b.cover_text, b.comment, b.author_id, a.last_name, a.first_name
	FROM books b LEFT JOIN authors a ON a.id = b.author_id`

// CreateBook inserts a new book and sets its ID.
func (s *Store) CreateBook(ctx context.Context, b *catalog.Book) error {
	result, err := s.write.ExecContext(ctx,
		`INSERT INTO books (title, cover_text, comment, author_id) VALUES (?, ?, ?, ?)`,
		b.Title, b.CoverText, b.Comment, nullInt(b.AuthorID),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

// GetBook retrieves a book with a summary of its author.
func (s *Store) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	row := s.read.QueryRowContext(ctx, selectBook+` WHERE b.id = ?`, id)
	return scanBook(row)
}

// ListBooks returns a page of books ordered by ID.
func (s *Store) ListBooks(ctx context.Context, offset, limit int) ([]*catalog.Book, error) {
	rows, err := s.read.QueryContext(ctx,
		selectBook+` ORDER BY b.id LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []*catalog.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBook updates an existing book, including its author relation.
func (s *Store) UpdateBook(ctx context.Context, b *catalog.Book) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE books SET title=?, cover_text=?, comment=?, author_id=? WHERE id=?`,
		b.Title, b.CoverText, b.Comment, nullInt(b.AuthorID), b.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "book")
}

// DeleteBook removes a book.
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "book")
}

func scanBook(s scanner) (*catalog.Book, error) {
	var b catalog.Book
	var authorID sql.NullInt64
	var lastName, firstName sql.NullString
	if err := s.Scan(&b.ID, &b.Title, &b.CoverText, &b.Comment, &authorID, &lastName, &firstName); err != nil {
		return nil, notFoundErr(err)
	}
	if authorID.Valid {
		b.SetAuthor(&catalog.Author{ID: authorID.Int64, LastName: lastName.String, FirstName: firstName.String})
	}
	return &b, nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
