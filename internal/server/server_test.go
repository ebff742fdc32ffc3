package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/app"
	"github.com/eugener/libris/internal/cache"
	"github.com/eugener/libris/internal/testutil"
)

type testEnv struct {
	h     http.Handler
	store *testutil.FakeStore
}

// newTestEnv wires the handler over a fake store and a real in-process
// tagged cache. mutate may adjust Deps before the handler is built.
func newTestEnv(t testing.TB, mutate func(*Deps)) *testEnv {
	t.Helper()
	store := testutil.NewFakeStore()
	mem, err := cache.NewMemory(1000, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	deps := Deps{
		Auth:    testutil.FakeAuth{},
		Catalog: app.NewCatalogService(store, cache.NewTagged(cache.NewIndex(mem), time.Minute), nil),
		Keys:    app.NewKeyManager(store, nil),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testEnv{h: New(deps), store: store}
}

// do sends a request with a bearer token and returns the recorder.
func (e *testEnv) do(method, target, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Authorization", "Bearer lib_test")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var e apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return e
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newTestEnv(t, nil).h

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	h := newTestEnv(t, nil).h

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadyzFailing(t *testing.T) {
	t.Parallel()
	h := newTestEnv(t, func(d *Deps) {
		d.ReadyCheck = func(context.Context) error { return errors.New("db down") }
	}).h

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestReadyzTimesOut(t *testing.T) {
	t.Parallel()
	h := newTestEnv(t, func(d *Deps) {
		d.ReadyCheck = func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
	}).h

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if rec.Body.String() != "not ready" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRecoveryReturns500(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, func(d *Deps) {
		d.ReadyCheck = func(context.Context) error { panic("boom") }
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeError(t, rec); got.Error.Type != errTypeInternal {
		t.Errorf("type = %q", got.Error.Type)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	h := newTestEnv(t, nil).h

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "given-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "given-id" {
		t.Errorf("request id = %q, want given-id", got)
	}
}

func TestNoAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(d *Deps) { d.Auth = testutil.RejectAuth{} })

	rec := env.do(http.MethodGet, "/api/authors", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if e := decodeError(t, rec); e.Error.Type != errTypeAuth {
		t.Errorf("type = %q, want %q", e.Error.Type, errTypeAuth)
	}
}

func TestUserCannotWrite(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(d *Deps) { d.Auth = testutil.FakeAuth{Role: catalog.RoleUser} })
	a := env.store.AddAuthor("Tolkien")

	tests := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/authors", `{"lastName":"Herbert"}`},
		{http.MethodPut, "/api/authors/1", `{"lastName":"Herbert"}`},
		{http.MethodDelete, "/api/authors/1", ""},
		{http.MethodPost, "/api/books", `{"title":"Dune"}`},
		{http.MethodDelete, "/api/books/1", ""},
		{http.MethodDelete, "/api/cache", ""},
		{http.MethodPost, "/api/keys", `{"name":"x"}`},
	}
	for _, tt := range tests {
		rec := env.do(tt.method, tt.path, tt.body)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", tt.method, tt.path, rec.Code)
		}
	}

	// Reads stay open to users.
	if rec := env.do(http.MethodGet, "/api/authors/1", ""); rec.Code != http.StatusOK {
		t.Errorf("read: status = %d, want 200", rec.Code)
	}
	if _, err := env.store.GetAuthor(context.Background(), a.ID); err != nil {
		t.Errorf("author should survive forbidden delete: %v", err)
	}
}

func TestRecoveryReturns500(t *testing.T) {
	t.Parallel()
	s := &server{}
	h := s.recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{catalog.ErrUnauthorized, http.StatusUnauthorized},
		{catalog.ErrKeyExpired, http.StatusUnauthorized},
		{catalog.ErrKeyBlocked, http.StatusForbidden},
		{catalog.ErrForbidden, http.StatusForbidden},
		{catalog.ErrNotFound, http.StatusNotFound},
		{catalog.ErrConflict, http.StatusConflict},
		{&catalog.ValidationError{}, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
