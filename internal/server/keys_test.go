package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	catalog "github.com/eugener/libris/internal"
)

func TestKeyLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/api/keys", `{"name":"ci","role":"user","expires_at":"2030-01-01T00:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID        string `json:"id"`
		Key       string `json:"key"`
		KeyPrefix string `json:"key_prefix"`
		Role      string `json:"role"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(created.Key, catalog.APIKeyPrefix) {
		t.Errorf("plaintext key = %q", created.Key)
	}
	if created.Role != catalog.RoleUser || created.KeyPrefix != created.Key[:12] {
		t.Errorf("created = %+v", created)
	}
	if strings.Contains(rec.Body.String(), "key_hash") {
		t.Error("key hash must never be exposed")
	}

	rec = env.do(http.MethodGet, "/api/keys", "")
	var list keyPage
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Pagination.Total != 1 {
		t.Errorf("total = %d, want 1", list.Pagination.Total)
	}

	if rec = env.do(http.MethodDelete, "/api/keys/"+created.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if rec = env.do(http.MethodDelete, "/api/keys/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestCreateKeyValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	tests := []struct {
		name, body, field string
	}{
		{"unknown role", `{"name":"x","role":"root"}`, "role"},
		{"bad expiry", `{"name":"x","expires_at":"tomorrow"}`, "expires_at"},
	}
	for _, tt := range tests {
		rec := env.do(http.MethodPost, "/api/keys", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
			continue
		}
		e := decodeError(t, rec)
		if len(e.Error.Fields) != 1 || e.Error.Fields[0].Field != tt.field {
			t.Errorf("%s: fields = %+v", tt.name, e.Error.Fields)
		}
	}

	if rec := env.do(http.MethodPost, "/api/keys", `[`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed: status = %d, want 400", rec.Code)
	}
}

func TestKeyRoutesNotMountedWithoutManager(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(d *Deps) { d.Keys = nil })
	if rec := env.do(http.MethodGet, "/api/keys", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
