// Package storage defines persistence interfaces for the catalog.
package storage

import (
	"context"

	catalog "github.com/eugener/libris/internal"
)

// AuthorStore manages author persistence. Reads load the author's books.
type AuthorStore interface {
	CreateAuthor(ctx context.Context, a *catalog.Author) error
	GetAuthor(ctx context.Context, id int64) (*catalog.Author, error)
	ListAuthors(ctx context.Context, offset, limit int) ([]*catalog.Author, error)
	UpdateAuthor(ctx context.Context, a *catalog.Author) error
	// DeleteAuthor removes the author and all of its books in one transaction,
	// returning the number of books removed.
	DeleteAuthor(ctx context.Context, id int64) (int, error)
}

// BookStore manages book persistence. Reads load a summary of the book's author.
type BookStore interface {
	CreateBook(ctx context.Context, b *catalog.Book) error
	GetBook(ctx context.Context, id int64) (*catalog.Book, error)
	ListBooks(ctx context.Context, offset, limit int) ([]*catalog.Book, error)
	UpdateBook(ctx context.Context, b *catalog.Book) error
	DeleteBook(ctx context.Context, id int64) error
}

// APIKeyStore manages API key persistence.
type APIKeyStore interface {
	CreateKey(ctx context.Context, key *catalog.APIKey) error
	GetKey(ctx context.Context, id string) (*catalog.APIKey, error)
	GetKeyByHash(ctx context.Context, hash string) (*catalog.APIKey, error)
	ListKeys(ctx context.Context, offset, limit int) ([]*catalog.APIKey, error)
	CountKeys(ctx context.Context) (int, error)
	DeleteKey(ctx context.Context, id string) error
	TouchKeyUsed(ctx context.Context, id string) error
}

// Store combines all storage interfaces.
type Store interface {
	AuthorStore
	BookStore
	APIKeyStore
	Ping(ctx context.Context) error
	Close() error
}
