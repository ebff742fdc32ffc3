package catalog

import (
	"errors"
	"strings"
)

// Sentinel errors for the catalog domain.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrKeyExpired   = errors.New("api key expired")
	ErrKeyBlocked   = errors.New("api key blocked")
)

// FieldError describes one violated constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field errors. It matches ErrBadRequest under errors.Is.
type ValidationError struct {
	Fields []FieldError
}

// Add records a violation for field.
func (v *ValidationError) Add(field, msg string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: msg})
}

// OrNil returns v as an error when it holds violations, nil otherwise.
func (v *ValidationError) OrNil() error {
	if len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrBadRequest) match validation failures.
func (v *ValidationError) Is(target error) bool { return target == ErrBadRequest }
