package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// A discarding text handler still formats every record, so allocation
	// counts in benchmarks include logging.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// seededEnv returns a test env with four authors of two books each.
func seededEnv(b *testing.B) *testEnv {
	env := newTestEnv(b, nil)
	for _, last := range []string{"Asimov", "Banks", "Clarke", "Delany"} {
		a := env.store.AddAuthor(last)
		env.store.AddBook(last+" I", a)
		env.store.AddBook(last+" II", a)
	}
	return env
}

func listRequest(target, version string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer lib_test")
	if version != "" {
		req.Header.Set("Accept", "application/json;version="+version)
	}
	return req
}

func BenchmarkList(b *testing.B) {
	cases := []struct {
		name, target, version string
	}{
		{"authors/v1", "/api/authors?page=1&limit=3", ""},
		{"authors/v2", "/api/authors?page=1&limit=3", "2.0"},
		{"books/v2", "/api/books?page=2&limit=3", "2.0"},
	}
	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			env := seededEnv(b)
			for b.Loop() {
				rec := httptest.NewRecorder()
				env.h.ServeHTTP(rec, listRequest(bc.target, bc.version))
				if rec.Code != http.StatusOK {
					b.Fatalf("status = %d; body = %s", rec.Code, rec.Body)
				}
			}
		})
	}
}

func BenchmarkListParallel(b *testing.B) {
	env := seededEnv(b)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			rec := httptest.NewRecorder()
			env.h.ServeHTTP(rec, listRequest("/api/authors", "2.0"))
			if rec.Code != http.StatusOK {
				b.Errorf("status = %d", rec.Code)
				return
			}
		}
	})
}

// BenchmarkListNotModified covers the conditional GET path, which skips
// writing the body.
func BenchmarkListNotModified(b *testing.B) {
	env := seededEnv(b)
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, listRequest("/api/books", ""))
	etag := rec.Header().Get("ETag")
	if etag == "" {
		b.Fatal("no ETag on list response")
	}

	for b.Loop() {
		req := listRequest("/api/books", "")
		req.Header.Set("If-None-Match", etag)
		rec := httptest.NewRecorder()
		env.h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotModified {
			b.Fatalf("status = %d, want 304", rec.Code)
		}
	}
}

// nullWriter drops the body and keeps one header map across iterations so
// the numbers reflect the handler chain alone.
type nullWriter struct {
	hdr  http.Header
	code int
}

func (w *nullWriter) Header() http.Header         { return w.hdr }
func (w *nullWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w *nullWriter) WriteHeader(code int)        { w.code = code }

func BenchmarkHandlerChain(b *testing.B) {
	env := seededEnv(b)
	w := &nullWriter{hdr: make(http.Header, 8)}
	hdr := http.Header{"Authorization": {"Bearer lib_test"}}

	for b.Loop() {
		clear(w.hdr)
		w.code = http.StatusOK
		req, _ := http.NewRequest(http.MethodGet, "/api/books", nil)
		req.Header = hdr
		env.h.ServeHTTP(w, req)
		if w.code != http.StatusOK {
			b.Fatalf("status = %d", w.code)
		}
	}
}
