package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	catalog "github.com/eugener/libris/internal"
	"github.com/eugener/libris/internal/external"
)

// Error types reported in the error envelope.
const (
	errTypeValidation = "validation_error"
	errTypeRequest    = "invalid_request_error"
	errTypeAuth       = "authentication_error"
	errTypePermission = "permission_error"
	errTypeNotFound   = "not_found_error"
	errTypeUpstream   = "upstream_error"
	errTypeRateLimit  = "rate_limit_error"
	errTypeInternal   = "internal_error"
)

type apiError struct {
	Error struct {
		Message string               `json:"message"`
		Type    string               `json:"type"`
		Fields  []catalog.FieldError `json:"fields,omitempty"`
	} `json:"error"`
}

func errorResponse(typ, msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = typ
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnauthorized), errors.Is(err, catalog.ErrKeyExpired):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrForbidden), errors.Is(err, catalog.ErrKeyBlocked):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, external.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes the error envelope. Validation
// failures carry their field list. Server errors are logged in full and
// reported to the client with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)

	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		e := errorResponse(errTypeValidation, "validation failed")
		e.Error.Fields = verr.Fields
		writeJSON(w, status, e)
		return
	}

	switch status {
	case http.StatusUnauthorized:
		writeJSON(w, status, errorResponse(errTypeAuth, err.Error()))
	case http.StatusForbidden:
		writeJSON(w, status, errorResponse(errTypePermission, err.Error()))
	case http.StatusNotFound:
		writeJSON(w, status, errorResponse(errTypeNotFound, "not found"))
	case http.StatusConflict:
		writeJSON(w, status, errorResponse(errTypeRequest, "conflict"))
	case http.StatusBadRequest:
		writeJSON(w, status, errorResponse(errTypeRequest, err.Error()))
	default:
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
			slog.String("request_id", catalog.RequestIDFromContext(r.Context())),
		)
		typ, msg := errTypeInternal, "internal error"
		if status == http.StatusBadGateway {
			typ, msg = errTypeUpstream, "upstream unavailable"
		}
		writeJSON(w, status, errorResponse(typ, msg))
	}
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeRaw writes an already serialized JSON payload.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(body)
}

// readBody reads the request body up to the configured limit.
func (s *server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse(errTypeRequest, "request body too large"))
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse(errTypeRequest, "invalid request body"))
		return nil, false
	}
	return body, true
}

// pathID parses the {id} URL parameter. Anything but a positive integer is
// a 404: no resource lives at that path.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusNotFound, errorResponse(errTypeNotFound, "not found"))
		return 0, false
	}
	return id, true
}
