package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/cache"
	"github.com/eugener/libris/internal/serializer"
	"github.com/eugener/libris/internal/storage"
	"github.com/eugener/libris/internal/telemetry"
)

// Cache tags. An entry is tagged with its own resource and with every
// resource embedded in its payload: author lists embed books and book lists
// embed authors, so each list carries both tags.
const (
	TagAuthors = "authorsCache"
	TagBooks   = "booksCache"
)

// CatalogStore is the persistence needed by CatalogService.
type CatalogStore interface {
	storage.AuthorStore
	storage.BookStore
}

// MutationRecorder counts persisted mutations. Nil means no recording.
type MutationRecorder interface {
	RecordMutation(resource, op string)
}

// CatalogService implements the author and book endpoints: cached list reads,
// direct single reads, and mutations that invalidate the list cache.
type CatalogService struct {
	store    CatalogStore
	cache    *cache.Tagged
	recorder MutationRecorder
	tracer   trace.Tracer
}

// NewCatalogService returns a CatalogService. recorder may be nil.
func NewCatalogService(store CatalogStore, c *cache.Tagged, recorder MutationRecorder) *CatalogService {
	return &CatalogService{
		store:    store,
		cache:    c,
		recorder: recorder,
		tracer:   telemetry.Tracer("libris/app"),
	}
}

// ListAuthors returns the serialized author page for the given API version.
// Admins get a separately cached page carrying the write links.
func (s *CatalogService) ListAuthors(ctx context.Context, p Page, version string, admin bool) ([]byte, error) {
	kind := "authors"
	if admin {
		kind = "authors.admin"
	}
	key := ListKey(kind, p, version)
	return s.cache.GetOrCompute(ctx, key, []string{TagAuthors, TagBooks}, func(ctx context.Context) ([]byte, error) {
		ctx, span := s.tracer.Start(ctx, "catalog.list_authors", trace.WithAttributes(
			attribute.Int("page", p.Page), attribute.Int("limit", p.Limit)))
		defer span.End()

		authors, err := s.store.ListAuthors(ctx, p.Offset(), p.Limit)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("list authors: %w", err)
		}
		return serializer.Authors(authors, version, admin)
	})
}

// ListBooks returns the serialized book page for the given API version.
func (s *CatalogService) ListBooks(ctx context.Context, p Page, version string) ([]byte, error) {
	key := ListKey("books", p, version)
	return s.cache.GetOrCompute(ctx, key, []string{TagBooks, TagAuthors}, func(ctx context.Context) ([]byte, error) {
		ctx, span := s.tracer.Start(ctx, "catalog.list_books", trace.WithAttributes(
			attribute.Int("page", p.Page), attribute.Int("limit", p.Limit)))
		defer span.End()

		books, err := s.store.ListBooks(ctx, p.Offset(), p.Limit)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("list books: %w", err)
		}
		return serializer.Books(books, version)
	})
}

// GetAuthor returns one author with its books.
func (s *CatalogService) GetAuthor(ctx context.Context, id int64) (*catalog.Author, error) {
	return s.store.GetAuthor(ctx, id)
}

// GetBook returns one book with its author summary.
func (s *CatalogService) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	return s.store.GetBook(ctx, id)
}

// CreateAuthor validates and persists a new author from a JSON body.
func (s *CatalogService) CreateAuthor(ctx context.Context, body []byte) (*catalog.Author, error) {
	var patch catalog.AuthorPatch
	if err := decodeBody(body, &patch); err != nil {
		return nil, err
	}
	a := &catalog.Author{}
	a.Apply(patch)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateAuthor(ctx, a); err != nil {
		return nil, err
	}
	a.Books = []*catalog.Book{}
	s.invalidate(ctx, "author", "create", TagAuthors)
	return a, nil
}

// UpdateAuthor applies a partial JSON body to an existing author.
func (s *CatalogService) UpdateAuthor(ctx context.Context, id int64, body []byte) error {
	var patch catalog.AuthorPatch
	if err := decodeBody(body, &patch); err != nil {
		return err
	}
	a, err := s.store.GetAuthor(ctx, id)
	if err != nil {
		return err
	}
	a.Apply(patch)
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateAuthor(ctx, a); err != nil {
		return err
	}
	s.invalidate(ctx, "author", "update", TagAuthors)
	return nil
}

// DeleteAuthor removes an author together with its books.
func (s *CatalogService) DeleteAuthor(ctx context.Context, id int64) error {
	n, err := s.store.DeleteAuthor(ctx, id)
	if err != nil {
		return err
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "author deleted",
		slog.Int64("author_id", id), slog.Int("books_removed", n))
	s.invalidate(ctx, "author", "delete", TagAuthors, TagBooks)
	return nil
}

// CreateBook validates and persists a new book from a JSON body. The optional
// idAuthor field links the book to an existing author.
func (s *CatalogService) CreateBook(ctx context.Context, body []byte) (*catalog.Book, error) {
	var patch catalog.BookPatch
	if err := decodeBody(body, &patch); err != nil {
		return nil, err
	}
	b := &catalog.Book{}
	b.Apply(patch)

	v := validationOf(b.Validate())
	if err := s.linkAuthor(ctx, b, body, v); err != nil {
		return nil, err
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if err := s.store.CreateBook(ctx, b); err != nil {
		return nil, err
	}
	s.invalidate(ctx, "book", "create", TagBooks)
	return b, nil
}

// UpdateBook applies a partial JSON body to an existing book. An absent
// idAuthor keeps the current author; null unlinks it.
func (s *CatalogService) UpdateBook(ctx context.Context, id int64, body []byte) error {
	var patch catalog.BookPatch
	if err := decodeBody(body, &patch); err != nil {
		return err
	}
	b, err := s.store.GetBook(ctx, id)
	if err != nil {
		return err
	}
	b.Apply(patch)

	v := validationOf(b.Validate())
	if err := s.linkAuthor(ctx, b, body, v); err != nil {
		return err
	}
	if err := v.OrNil(); err != nil {
		return err
	}
	if err := s.store.UpdateBook(ctx, b); err != nil {
		return err
	}
	s.invalidate(ctx, "book", "update", TagBooks)
	return nil
}

// DeleteBook removes a book.
func (s *CatalogService) DeleteBook(ctx context.Context, id int64) error {
	if err := s.store.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "book", "delete", TagBooks)
	return nil
}

// PurgeCache drops every cached list page.
func (s *CatalogService) PurgeCache(ctx context.Context) {
	s.cache.Purge(ctx)
	slog.LogAttrs(ctx, slog.LevelInfo, "list cache purged")
}

// linkAuthor resolves the idAuthor field of body onto b. Field problems are
// added to v; only store failures are returned.
func (s *CatalogService) linkAuthor(ctx context.Context, b *catalog.Book, body []byte, v *catalog.ValidationError) error {
	ref := gjson.GetBytes(body, "idAuthor")
	switch {
	case !ref.Exists():
		return nil
	case ref.Type == gjson.Null:
		b.SetAuthor(nil)
		return nil
	case ref.Type != gjson.Number || ref.Num != math.Trunc(ref.Num):
		v.Add("idAuthor", "The author id must be an integer or null")
		return nil
	}

	a, err := s.store.GetAuthor(ctx, ref.Int())
	if errors.Is(err, catalog.ErrNotFound) {
		v.Add("idAuthor", fmt.Sprintf("Author %d does not exist", ref.Int()))
		return nil
	}
	if err != nil {
		return err
	}
	b.SetAuthor(a)
	return nil
}

// invalidate drops the list pages tagged with tags after a persisted mutation.
// The mutation already succeeded, so a cache failure is logged, not returned.
func (s *CatalogService) invalidate(ctx context.Context, resource, op string, tags ...string) {
	if s.recorder != nil {
		s.recorder.RecordMutation(resource, op)
	}
	n, err := s.cache.InvalidateTags(ctx, tags...)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "cache invalidation failed",
			slog.String("resource", resource), slog.String("op", op), slog.String("error", err.Error()))
		return
	}
	slog.LogAttrs(ctx, slog.LevelDebug, "cache invalidated",
		slog.String("resource", resource), slog.String("op", op), slog.Int("entries", n))
}

// decodeBody unmarshals a JSON object body. Malformed input is a bad request.
func decodeBody(body []byte, dst any) error {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return fmt.Errorf("%w: request body must be a JSON object", catalog.ErrBadRequest)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %w", catalog.ErrBadRequest, err)
	}
	return nil
}

// validationOf returns err as a *ValidationError to extend, or a fresh one.
func validationOf(err error) *catalog.ValidationError {
	var v *catalog.ValidationError
	if errors.As(err, &v) {
		return v
	}
	return &catalog.ValidationError{}
}
