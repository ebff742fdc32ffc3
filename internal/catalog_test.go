package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestHashKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "prefix only", raw: APIKeyPrefix},
		{name: "typical key", raw: "lib_abc123xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HashKey(tt.raw)
			h := sha256.Sum256([]byte(tt.raw))
			if want := hex.EncodeToString(h[:]); got != want {
				t.Errorf("HashKey(%q) = %q, want %q", tt.raw, got, want)
			}
		})
	}

	if HashKey("key1") == HashKey("key2") {
		t.Error("distinct inputs produced same hash")
	}
}

func TestRolePermissions(t *testing.T) {
	t.Parallel()

	admin := &Identity{Perms: RolePermissions[RoleAdmin]}
	for _, p := range []Permission{PermReadCatalog, PermWriteCatalog, PermManageKeys, PermManageCache} {
		if !admin.Can(p) {
			t.Errorf("admin: expected Can(%v)", p)
		}
	}

	user := &Identity{Perms: RolePermissions[RoleUser]}
	if !user.Can(PermReadCatalog) {
		t.Error("user should read the catalog")
	}
	for _, p := range []Permission{PermWriteCatalog, PermManageKeys, PermManageCache} {
		if user.Can(p) {
			t.Errorf("user: expected Can(%v) = false", p)
		}
	}

	if ValidRole("superuser") {
		t.Error("unknown role reported valid")
	}
}

func TestContextMetaMutation(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRequestID(context.Background(), "req-xyz")
	id := &Identity{Subject: "svc-1", Role: RoleUser}
	if ContextWithIdentity(ctx, id) != ctx {
		t.Error("ContextWithIdentity should return same ctx when meta already present")
	}
	if ContextWithVersion(ctx, "2.0") != ctx {
		t.Error("ContextWithVersion should return same ctx when meta already present")
	}
	if got := IdentityFromContext(ctx); got != id {
		t.Errorf("IdentityFromContext = %v, want %v", got, id)
	}
	if got := VersionFromContext(ctx); got != "2.0" {
		t.Errorf("VersionFromContext = %q, want 2.0", got)
	}
	if got := RequestIDFromContext(ctx); got != "req-xyz" {
		t.Errorf("RequestIDFromContext = %q, want req-xyz", got)
	}

	bare := context.Background()
	if IdentityFromContext(bare) != nil || VersionFromContext(bare) != "" || RequestIDFromContext(bare) != "" {
		t.Error("bare context should carry no metadata")
	}
}

func TestAuthorValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lastName string
		wantErr  bool
	}{
		{"valid", "Hugo", false},
		{"empty", "", true},
		{"too short", "H", true},
		{"max length", strings.Repeat("a", 255), false},
		{"too long", strings.Repeat("a", 256), true},
		{"multibyte counts runes", "Ée", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := &Author{LastName: tt.lastName}
			err := a.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not *ValidationError", err)
			}
			if ve.Fields[0].Field != "lastName" {
				t.Errorf("field = %q, want lastName", ve.Fields[0].Field)
			}
			if !errors.Is(err, ErrBadRequest) {
				t.Error("validation error should match ErrBadRequest")
			}
		})
	}
}

func TestBookApply(t *testing.T) {
	t.Parallel()

	b := &Book{Title: "Old", CoverText: "keep"}
	title := "New title"
	b.Apply(BookPatch{Title: &title})
	if b.Title != "New title" {
		t.Errorf("title = %q", b.Title)
	}
	if b.CoverText != "keep" {
		t.Errorf("cover text changed to %q", b.CoverText)
	}

	b.SetAuthor(&Author{ID: 7, LastName: "Hugo"})
	if b.AuthorID == nil || *b.AuthorID != 7 || b.Author.LastName != "Hugo" {
		t.Errorf("author not linked: %+v", b)
	}
	b.SetAuthor(nil)
	if b.AuthorID != nil || b.Author != nil {
		t.Error("author relation should be cleared")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	var v ValidationError
	if v.OrNil() != nil {
		t.Error("empty ValidationError should be nil")
	}
	v.Add("title", "The title is required")
	v.Add("idAuthor", "author 9 does not exist")
	want := "validation failed: title: The title is required; idAuthor: author 9 does not exist"
	if got := v.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewAPIKey(t *testing.T) {
	t.Parallel()
	plain := GenerateKey()
	if !strings.HasPrefix(plain, APIKeyPrefix) {
		t.Fatalf("key %q lacks prefix", plain)
	}
	if GenerateKey() == plain {
		t.Error("two generated keys are equal")
	}

	k := NewAPIKey(plain, "ci", "", nil)
	if k.Role != RoleUser {
		t.Errorf("role = %q, want user", k.Role)
	}
	if k.KeyPrefix != plain[:KeyPrefixLen] || k.KeyHash != HashKey(plain) {
		t.Errorf("key = %+v", k)
	}
	if k.ID == "" || k.CreatedAt.IsZero() {
		t.Error("id and created_at must be set")
	}
	if short := NewAPIKey("lib_x", "", RoleAdmin, nil); short.KeyPrefix != "lib_x" {
		t.Errorf("short prefix = %q", short.KeyPrefix)
	}
}
