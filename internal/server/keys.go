package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/app"
)

// newKey is the POST /api/keys body. expires_at is RFC 3339.
type newKey struct {
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// mintedKey is the only response that ever carries a key's plaintext.
type mintedKey struct {
	*catalog.APIKey
	Plaintext string `json:"key"`
}

type pageInfo struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type keyPage struct {
	Data       []*catalog.APIKey `json:"data"`
	Pagination pageInfo          `json:"pagination"`
}

func (s *server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := app.ParsePage(q.Get("page"), q.Get("limit"), app.MaxLimit)

	keys, total, err := s.deps.Keys.ListKeys(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page := keyPage{
		Data:       keys,
		Pagination: pageInfo{Page: p.Page, Limit: p.Limit, Total: total},
	}
	if page.Data == nil {
		page.Data = []*catalog.APIKey{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req newKey
	if err := json.Unmarshal(raw, &req); err != nil {
		var perr *time.ParseError
		if errors.As(err, &perr) {
			v := &catalog.ValidationError{}
			v.Add("expires_at", "The expiry must be an RFC3339 timestamp")
			writeError(w, r, v)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse(errTypeRequest, "invalid request body"))
		return
	}

	plaintext, key, err := s.deps.Keys.CreateKey(r.Context(), app.CreateKeyOpts{
		Name:      req.Name,
		Role:      req.Role,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/keys/"+key.ID)
	writeJSON(w, http.StatusCreated, mintedKey{APIKey: key, Plaintext: plaintext})
}

func (s *server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Keys.DeleteKey(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
