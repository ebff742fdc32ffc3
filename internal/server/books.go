package server

import (
	"net/http"
	"strconv"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/app"
	"github.com/eugener/libris/internal/serializer"
)

func (s *server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := app.ParsePage(q.Get("page"), q.Get("limit"), s.deps.DefaultPageLimit)
	body, err := s.deps.Catalog.ListBooks(r.Context(), p, catalog.VersionFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, body)
}

func (s *server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := s.deps.Catalog.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := serializer.Book(b, catalog.VersionFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	b, err := s.deps.Catalog.CreateBook(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := serializer.Book(b, catalog.VersionFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", bookLocation(b.ID))
	writeRaw(w, http.StatusCreated, body)
}

func (s *server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if err := s.deps.Catalog.UpdateBook(r.Context(), id, raw); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Catalog.DeleteBook(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bookLocation is the detail route of a book.
func bookLocation(id int64) string {
	return "/api/books/" + strconv.FormatInt(id, 10)
}
