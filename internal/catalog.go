// Package catalog defines domain types and interfaces for the libris catalog API.
// It imports no other project package.
package catalog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// --- Catalog entities ---

// Author is a book author. Books is populated by reads that load the relation.
type Author struct {
	ID        int64   `json:"id"`
	LastName  string  `json:"lastName"`
	FirstName string  `json:"firstName,omitempty"`
	Books     []*Book `json:"books,omitempty"`
}

// Book is a catalog entry. Author is nil when the book has no author.
type Book struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	CoverText string  `json:"coverText,omitempty"`
	Comment   string  `json:"comment,omitempty"` // exposed from API version 2.0
	AuthorID  *int64  `json:"-"`
	Author    *Author `json:"author,omitempty"`
}

// AuthorPatch lists the author fields a client may change. Nil fields are left untouched.
type AuthorPatch struct {
	LastName  *string `json:"lastName"`
	FirstName *string `json:"firstName"`
}

// Apply copies the non-nil patch fields onto a.
func (a *Author) Apply(p AuthorPatch) {
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
}

// Validate checks the author constraints and returns a *ValidationError on failure.
func (a *Author) Validate() error {
	var v ValidationError
	checkLength(&v, "lastName", a.LastName, "last name")
	return v.OrNil()
}

// BookPatch lists the book fields a client may change. The author relation is
// handled separately because it is resolved through the author store.
type BookPatch struct {
	Title     *string `json:"title"`
	CoverText *string `json:"coverText"`
	Comment   *string `json:"comment"`
}

// Apply copies the non-nil patch fields onto b.
func (b *Book) Apply(p BookPatch) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.CoverText != nil {
		b.CoverText = *p.CoverText
	}
	if p.Comment != nil {
		b.Comment = *p.Comment
	}
}

// SetAuthor links b to a, or clears the relation when a is nil.
func (b *Book) SetAuthor(a *Author) {
	if a == nil {
		b.AuthorID = nil
		b.Author = nil
		return
	}
	id := a.ID
	b.AuthorID = &id
	b.Author = &Author{ID: a.ID, LastName: a.LastName, FirstName: a.FirstName}
}

// Validate checks the book constraints and returns a *ValidationError on failure.
func (b *Book) Validate() error {
	var v ValidationError
	checkLength(&v, "title", b.Title, "title")
	return v.OrNil()
}

const (
	minTextLen = 2
	maxTextLen = 255
)

func checkLength(v *ValidationError, field, value, label string) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		v.Add(field, "The "+label+" is required")
	case n < minTextLen:
		v.Add(field, "The length of "+label+" is less than 2")
	case n > maxTextLen:
		v.Add(field, "The length of "+label+" is greater than 255")
	}
}

// --- Identity ---

// APIKey represents an API key for authentication.
type APIKey struct {
	ID         string     `json:"id"`
	KeyHash    string     `json:"-"`          // SHA-256 hex, never exposed
	KeyPrefix  string     `json:"key_prefix"` // first 12 chars for display
	Name       string     `json:"name,omitempty"`
	Role       string     `json:"role"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Blocked    bool       `json:"blocked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Identity is the authenticated caller context attached to request context.
// Populated by either JWT or API key auth.
type Identity struct {
	Subject    string     `json:"subject"` // JWT sub or key prefix
	KeyID      string     `json:"key_id,omitempty"`
	Role       string     `json:"role"`
	Perms      Permission `json:"-"`
	AuthMethod string     `json:"auth_method"` // "jwt" or "apikey"
}

// --- RBAC ---

// Permission is a bitmask representing authorization capabilities.
type Permission uint32

const (
	PermReadCatalog  Permission = 1 << iota // list and fetch authors and books
	PermWriteCatalog                        // create, update, delete authors and books
	PermManageKeys                          // mint and revoke API keys
	PermManageCache                         // purge the response cache
	PermUseExternal                         // call the external passthrough endpoints
)

// Role names.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Can reports whether the identity has the given permission.
func (id *Identity) Can(p Permission) bool { return id.Perms&p == p }

// RolePermissions maps role names to their permission bitmasks.
var RolePermissions = map[string]Permission{
	RoleAdmin: PermReadCatalog | PermWriteCatalog | PermManageKeys | PermManageCache | PermUseExternal,
	RoleUser:  PermReadCatalog | PermUseExternal,
}

// ValidRole reports whether role is a known role name.
func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// Identity and Version are set later by middleware via mutation of the same
// pointer, avoiding extra context.WithValue + Request.WithContext calls.
type requestMeta struct {
	RequestID string
	Identity  *Identity
	Version   string
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the authenticated identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if present.
// Falls back to creating new metadata if none exists (e.g., in tests).
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// VersionFromContext returns the API version negotiated for the request, or "".
func VersionFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.Version
	}
	return ""
}

// ContextWithVersion stores the negotiated API version, mutating existing metadata when present.
func ContextWithVersion(ctx context.Context, version string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Version = version
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Version: version})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// --- Shared constants and helpers ---

// APIKeyPrefix is the prefix for all libris API keys.
const APIKeyPrefix = "lib_"

// KeyPrefixLen is how much of a plaintext key is kept for display.
const KeyPrefixLen = 12

// HashKey returns the hex-encoded SHA-256 hash of a raw API key.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// GenerateKey returns a new random plaintext API key.
func GenerateKey() string {
	return APIKeyPrefix + rand.Text()
}

// NewAPIKey builds the stored record for plaintext. Only the hash and the
// display prefix of the plaintext are kept. An empty role means RoleUser.
func NewAPIKey(plaintext, name, role string, expiresAt *time.Time) *APIKey {
	if role == "" {
		role = RoleUser
	}
	return &APIKey{
		ID:        uuid.Must(uuid.NewV7()).String(),
		KeyHash:   HashKey(plaintext),
		KeyPrefix: plaintext[:min(len(plaintext), KeyPrefixLen)],
		Name:      name,
		Role:      role,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

// --- Authenticator interface ---

// Authenticator validates request credentials and returns the caller identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}
