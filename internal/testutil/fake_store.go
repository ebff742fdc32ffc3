package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	catalog "github.com/eugener/libris/internal"
)

// FakeStore is an in-memory implementation of storage.Store for testing.
// Reads return copies so callers cannot mutate stored rows.
type FakeStore struct {
	mu      sync.RWMutex
	nextID  int64
	authors map[int64]*catalog.Author
	books   map[int64]*catalog.Book
	keys    map[string]*catalog.APIKey

	// ListCalls counts ListAuthors and ListBooks calls, to observe caching.
	ListCalls atomic.Int32
	// ListErr, when set, is returned by ListAuthors and ListBooks.
	ListErr error
}

// NewFakeStore returns a FakeStore with empty collections.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		authors: make(map[int64]*catalog.Author),
		books:   make(map[int64]*catalog.Book),
		keys:    make(map[string]*catalog.APIKey),
	}
}

// AddAuthor inserts an author and returns it with its assigned ID.
func (s *FakeStore) AddAuthor(lastName string) *catalog.Author {
	a := &catalog.Author{LastName: lastName}
	_ = s.CreateAuthor(context.Background(), a)
	return a
}

// AddBook inserts a book, optionally linked to author, and returns it.
func (s *FakeStore) AddBook(title string, author *catalog.Author) *catalog.Book {
	b := &catalog.Book{Title: title}
	b.SetAuthor(author)
	_ = s.CreateBook(context.Background(), b)
	return b
}

// BookCount returns the number of stored books.
func (s *FakeStore) BookCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

// --- AuthorStore ---

// CreateAuthor stores an author and assigns its ID.
func (s *FakeStore) CreateAuthor(_ context.Context, a *catalog.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	s.authors[a.ID] = &catalog.Author{ID: a.ID, LastName: a.LastName, FirstName: a.FirstName}
	return nil
}

// GetAuthor returns an author with its books.
func (s *FakeStore) GetAuthor(_ context.Context, id int64) (*catalog.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authors[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return s.authorWithBooks(a), nil
}

// ListAuthors returns a page of authors ordered by ID.
func (s *FakeStore) ListAuthors(_ context.Context, offset, limit int) ([]*catalog.Author, error) {
	s.ListCalls.Add(1)
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*catalog.Author{}
	for _, id := range page(sortedIDs(s.authors), offset, limit) {
		out = append(out, s.authorWithBooks(s.authors[id]))
	}
	return out, nil
}

// UpdateAuthor replaces a stored author's fields.
func (s *FakeStore) UpdateAuthor(_ context.Context, a *catalog.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[a.ID]; !ok {
		return fmt.Errorf("author: %w", catalog.ErrNotFound)
	}
	s.authors[a.ID] = &catalog.Author{ID: a.ID, LastName: a.LastName, FirstName: a.FirstName}
	return nil
}

// DeleteAuthor removes an author and its books.
func (s *FakeStore) DeleteAuthor(_ context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[id]; !ok {
		return 0, fmt.Errorf("author: %w", catalog.ErrNotFound)
	}
	n := 0
	for bid, b := range s.books {
		if b.AuthorID != nil && *b.AuthorID == id {
			delete(s.books, bid)
			n++
		}
	}
	delete(s.authors, id)
	return n, nil
}

// --- BookStore ---

// CreateBook stores a book and assigns its ID.
func (s *FakeStore) CreateBook(_ context.Context, b *catalog.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	s.books[b.ID] = cloneBook(b)
	return nil
}

// GetBook returns a book with its author summary.
func (s *FakeStore) GetBook(_ context.Context, id int64) (*catalog.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return s.bookWithAuthor(b), nil
}

// ListBooks returns a page of books ordered by ID.
func (s *FakeStore) ListBooks(_ context.Context, offset, limit int) ([]*catalog.Book, error) {
	s.ListCalls.Add(1)
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*catalog.Book{}
	for _, id := range page(sortedIDs(s.books), offset, limit) {
		out = append(out, s.bookWithAuthor(s.books[id]))
	}
	return out, nil
}

// UpdateBook replaces a stored book.
func (s *FakeStore) UpdateBook(_ context.Context, b *catalog.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[b.ID]; !ok {
		return fmt.Errorf("book: %w", catalog.ErrNotFound)
	}
	s.books[b.ID] = cloneBook(b)
	return nil
}

// DeleteBook removes a book.
func (s *FakeStore) DeleteBook(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return fmt.Errorf("book: %w", catalog.ErrNotFound)
	}
	delete(s.books, id)
	return nil
}

// --- APIKeyStore ---

// CreateKey stores an API key.
func (s *FakeStore) CreateKey(_ context.Context, key *catalog.APIKey) error {
	s.mu.Lock()
	s.keys[key.ID] = key
	s.mu.Unlock()
	return nil
}

// GetKey looks up an API key by ID.
func (s *FakeStore) GetKey(_ context.Context, id string) (*catalog.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k, ok := s.keys[id]; ok {
		return k, nil
	}
	return nil, catalog.ErrNotFound
}

// GetKeyByHash looks up an API key by hash.
func (s *FakeStore) GetKeyByHash(_ context.Context, hash string) (*catalog.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.KeyHash == hash {
			return k, nil
		}
	}
	return nil, catalog.ErrNotFound
}

// ListKeys returns a page of keys ordered by ID.
func (s *FakeStore) ListKeys(_ context.Context, offset, limit int) ([]*catalog.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []*catalog.APIKey
	for _, id := range page(ids, offset, limit) {
		out = append(out, s.keys[id])
	}
	return out, nil
}

// CountKeys returns the number of stored keys.
func (s *FakeStore) CountKeys(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys), nil
}

// DeleteKey removes an API key by ID.
func (s *FakeStore) DeleteKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return fmt.Errorf("api key: %w", catalog.ErrNotFound)
	}
	delete(s.keys, id)
	return nil
}

// TouchKeyUsed is a no-op.
func (s *FakeStore) TouchKeyUsed(context.Context, string) error { return nil }

// Ping always succeeds.
func (s *FakeStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *FakeStore) Close() error { return nil }

// --- helpers (caller holds s.mu) ---

func (s *FakeStore) authorWithBooks(a *catalog.Author) *catalog.Author {
	out := &catalog.Author{ID: a.ID, LastName: a.LastName, FirstName: a.FirstName, Books: []*catalog.Book{}}
	for _, id := range sortedIDs(s.books) {
		b := s.books[id]
		if b.AuthorID != nil && *b.AuthorID == a.ID {
			out.Books = append(out.Books, cloneBook(b))
		}
	}
	return out
}

func (s *FakeStore) bookWithAuthor(b *catalog.Book) *catalog.Book {
	out := cloneBook(b)
	out.Author = nil
	if b.AuthorID != nil {
		if a, ok := s.authors[*b.AuthorID]; ok {
			out.SetAuthor(a)
		}
	}
	return out
}

func cloneBook(b *catalog.Book) *catalog.Book {
	c := *b
	if b.AuthorID != nil {
		id := *b.AuthorID
		c.AuthorID = &id
	}
	c.Author = nil
	return &c
}

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	return items[offset:min(offset+limit, len(items))]
}
