package app

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/cache"
	"github.com/eugener/libris/internal/testutil"
)

type mutationLog struct{ ops []string }

func (m *mutationLog) RecordMutation(resource, op string) { m.ops = append(m.ops, resource+"."+op) }

func newTestService(t *testing.T) (*CatalogService, *testutil.FakeStore, *mutationLog) {
	t.Helper()
	mem, err := cache.NewMemory(1000, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	store := testutil.NewFakeStore()
	log := &mutationLog{}
	svc := NewCatalogService(store, cache.NewTagged(cache.NewIndex(mem), time.Minute), log)
	return svc, store, log
}

var firstPage = Page{Page: 1, Limit: 3}

func TestListBooks_CachedUntilBookMutation(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	store.AddBook("Dune", nil)

	first, err := svc.ListBooks(ctx, firstPage, "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ListBooks(ctx, firstPage, "1.0"); err != nil {
		t.Fatal(err)
	}
	if n := store.ListCalls.Load(); n != 1 {
		t.Fatalf("store list calls = %d, want 1 (second read cached)", n)
	}

	if _, err := svc.CreateBook(ctx, []byte(`{"title":"Emma"}`)); err != nil {
		t.Fatal(err)
	}
	after, err := svc.ListBooks(ctx, firstPage, "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if store.ListCalls.Load() != 2 {
		t.Error("create should invalidate the books list")
	}
	if gjson.GetBytes(first, "#").Int() != 1 || gjson.GetBytes(after, "#").Int() != 2 {
		t.Errorf("before = %s, after = %s", first, after)
	}
}

func TestListBooks_VersionedEntries(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	b := store.AddBook("Dune", nil)
	b.Comment = "classic"
	if err := store.UpdateBook(ctx, b); err != nil {
		t.Fatal(err)
	}

	v1, err := svc.ListBooks(ctx, firstPage, "1.0")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := svc.ListBooks(ctx, firstPage, "2.0")
	if err != nil {
		t.Fatal(err)
	}
	if gjson.GetBytes(v1, "0.comment").Exists() {
		t.Errorf("1.0 payload leaks comment: %s", v1)
	}
	if gjson.GetBytes(v2, "0.comment").String() != "classic" {
		t.Errorf("2.0 payload missing comment: %s", v2)
	}
}

func TestUpdateAuthor_InvalidatesBookLists(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.AddAuthor("Herbert")
	store.AddBook("Dune", a)

	if _, err := svc.ListBooks(ctx, firstPage, "1.0"); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdateAuthor(ctx, a.ID, []byte(`{"lastName":"Herbert Jr"}`)); err != nil {
		t.Fatal(err)
	}
	got, err := svc.ListBooks(ctx, firstPage, "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if name := gjson.GetBytes(got, "0.author.lastName").String(); name != "Herbert Jr" {
		t.Errorf("embedded author = %q, want updated name", name)
	}
}

func TestDeleteAuthor_CascadesAndInvalidatesBoth(t *testing.T) {
	t.Parallel()
	svc, store, log := newTestService(t)
	ctx := context.Background()
	a := store.AddAuthor("Tolkien")
	for _, title := range []string{"The Hobbit", "The Silmarillion", "Unfinished Tales"} {
		store.AddBook(title, a)
	}

	if _, err := svc.ListAuthors(ctx, firstPage, "1.0", false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ListBooks(ctx, firstPage, "1.0"); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteAuthor(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if n := store.BookCount(); n != 0 {
		t.Errorf("books left = %d, want 0", n)
	}

	authors, err := svc.ListAuthors(ctx, firstPage, "1.0", false)
	if err != nil {
		t.Fatal(err)
	}
	books, err := svc.ListBooks(ctx, firstPage, "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if string(authors) != "[]" || string(books) != "[]" {
		t.Errorf("authors = %s, books = %s; want both empty", authors, books)
	}
	if store.ListCalls.Load() != 4 {
		t.Errorf("list calls = %d, want 4 (both lists recomputed)", store.ListCalls.Load())
	}
	if len(log.ops) != 1 || log.ops[0] != "author.delete" {
		t.Errorf("mutations = %v", log.ops)
	}
}

func TestCreateAuthor_ValidationFailureTouchesNothing(t *testing.T) {
	t.Parallel()
	svc, store, log := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ListAuthors(ctx, firstPage, "1.0", false); err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"missing":   `{"firstName":"Ann"}`,
		"too short": `{"lastName":"A"}`,
	}
	for name, body := range tests {
		_, err := svc.CreateAuthor(ctx, []byte(body))
		var v *catalog.ValidationError
		if !errors.As(err, &v) {
			t.Fatalf("%s: err = %v, want ValidationError", name, err)
		}
		if v.Fields[0].Field != "lastName" {
			t.Errorf("%s: field = %q", name, v.Fields[0].Field)
		}
	}

	if _, err := svc.ListAuthors(ctx, firstPage, "1.0", false); err != nil {
		t.Fatal(err)
	}
	if store.ListCalls.Load() != 1 {
		t.Error("failed validation must not invalidate the cache")
	}
	if len(log.ops) != 0 {
		t.Errorf("mutations recorded: %v", log.ops)
	}
}

func TestCreateBook_AuthorReference(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.AddAuthor("Austen")

	b, err := svc.CreateBook(ctx, []byte(`{"title":"Emma","idAuthor":`+itoa(a.ID)+`}`))
	if err != nil {
		t.Fatal(err)
	}
	if b.Author == nil || b.Author.LastName != "Austen" {
		t.Errorf("author = %+v", b.Author)
	}

	b, err = svc.CreateBook(ctx, []byte(`{"title":"Anonymous","idAuthor":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if b.AuthorID != nil {
		t.Error("null idAuthor should leave the book without author")
	}

	for name, body := range map[string]string{
		"unknown id": `{"title":"Ghost","idAuthor":9999}`,
		"string id":  `{"title":"Ghost","idAuthor":"1"}`,
		"fraction":   `{"title":"Ghost","idAuthor":1.5}`,
	} {
		_, err := svc.CreateBook(ctx, []byte(body))
		var v *catalog.ValidationError
		if !errors.As(err, &v) || v.Fields[0].Field != "idAuthor" {
			t.Errorf("%s: err = %v, want idAuthor validation error", name, err)
		}
	}

	_, err = svc.CreateBook(ctx, []byte(`{"title":"X","idAuthor":9999}`))
	var v *catalog.ValidationError
	if !errors.As(err, &v) || len(v.Fields) != 2 {
		t.Errorf("err = %v, want title and idAuthor errors together", err)
	}
	if store.BookCount() != 2 {
		t.Errorf("book count = %d, want 2", store.BookCount())
	}
}

func TestUpdateBook_PartialAndAuthorSemantics(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a := store.AddAuthor("Austen")
	b := store.AddBook("Emma", a)

	if err := svc.UpdateBook(ctx, b.ID, []byte(`{"coverText":"A novel"}`)); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetBook(ctx, b.ID)
	if got.Title != "Emma" || got.CoverText != "A novel" {
		t.Errorf("partial update = %+v", got)
	}
	if got.AuthorID == nil || *got.AuthorID != a.ID {
		t.Error("absent idAuthor should keep the current author")
	}

	if err := svc.UpdateBook(ctx, b.ID, []byte(`{"idAuthor":null}`)); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetBook(ctx, b.ID)
	if got.AuthorID != nil {
		t.Error("null idAuthor should unlink the author")
	}

	if err := svc.UpdateBook(ctx, 9999, []byte(`{}`)); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing book err = %v, want ErrNotFound", err)
	}
}

func TestMutations_MalformedBody(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, body := range []string{``, `not json`, `[1,2]`, `{"title":5}`} {
		if _, err := svc.CreateBook(ctx, []byte(body)); !errors.Is(err, catalog.ErrBadRequest) {
			t.Errorf("body %q: err = %v, want ErrBadRequest", body, err)
		}
	}
}

func TestListAuthors_ComputeFailure(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	boom := errors.New("db down")
	store.ListErr = boom
	if _, err := svc.ListAuthors(ctx, firstPage, "1.0", false); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	store.ListErr = nil
	if _, err := svc.ListAuthors(ctx, firstPage, "1.0", false); err != nil {
		t.Fatal(err)
	}
	if store.ListCalls.Load() != 2 {
		t.Error("a failed compute must not be cached")
	}
}

func TestDeleteBook_NotFound(t *testing.T) {
	t.Parallel()
	svc, _, log := newTestService(t)
	if err := svc.DeleteBook(context.Background(), 42); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if len(log.ops) != 0 {
		t.Error("failed delete must not be recorded")
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
