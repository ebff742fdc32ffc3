package server

import (
	"net/http"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/app"
	"github.com/eugener/libris/internal/serializer"
)

func (s *server) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := app.ParsePage(q.Get("page"), q.Get("limit"), s.deps.DefaultPageLimit)
	body, err := s.deps.Catalog.ListAuthors(r.Context(), p, catalog.VersionFromContext(r.Context()), canWrite(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, r, body)
}

func (s *server) handleGetAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := s.deps.Catalog.GetAuthor(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := serializer.Author(a, catalog.VersionFromContext(r.Context()), canWrite(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, body)
}

func (s *server) handleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	a, err := s.deps.Catalog.CreateAuthor(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := serializer.Author(a, catalog.VersionFromContext(r.Context()), canWrite(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", serializer.SelfLink(a.ID))
	writeRaw(w, http.StatusCreated, body)
}

func (s *server) handleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if err := s.deps.Catalog.UpdateAuthor(r.Context(), id, raw); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Catalog.DeleteAuthor(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// canWrite reports whether the caller may modify the catalog.
func canWrite(r *http.Request) bool {
	id := catalog.IdentityFromContext(r.Context())
	return id != nil && id.Can(catalog.PermWriteCatalog)
}
