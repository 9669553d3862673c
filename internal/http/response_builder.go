// Package http serves the ledger over a JSON and CSV API.
//
// This file implements a builder for JSON responses so every handler shares
// one envelope for data, staleness warnings and errors.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dailyledger/internal/core"
)

// StaleWarning accompanies data served from an earlier snapshot.
const StaleWarning = "ledger store unavailable; showing last loaded data"

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the payload.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Freshness marks the response with the snapshot time and, when stale, the
// stale warning header.
func (b *JSONResponseBuilder) Freshness(loadedAt time.Time, stale bool) *JSONResponseBuilder {
	if !loadedAt.IsZero() {
		b.headers["X-Ledger-Loaded-At"] = loadedAt.UTC().Format(time.RFC3339)
	}
	if stale {
		b.headers["Warning"] = `110 - "` + StaleWarning + `"`
	}
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.payload != nil {
		_ = json.NewEncoder(w).Encode(b.payload)
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Code  string `json:"code"`
}

// Error codes carried in ErrorBody.
const (
	CodeBadRequest   = "bad_request"
	CodeInvalidEntry = "invalid_entry"
	CodeUnauthorized = "unauthorized"
	CodeUnavailable  = "store_unavailable"
	CodeRateLimited  = "rate_limited"
	CodeNotFound     = "not_found"
	CodeInternal     = "internal"
)

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Data(ErrorBody{Error: message, Code: code})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// UnauthorizedError creates a 401 response with a Basic challenge.
func UnauthorizedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, CodeUnauthorized, core.ErrUnauthenticated.Error()).
		Header("WWW-Authenticate", `Basic realm="ledger", charset="UTF-8"`)
}

// ServiceUnavailableError creates a 503 response.
func ServiceUnavailableError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, message).Header("Retry-After", "30")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, message)
}

// FromError maps the ledger error taxonomy onto a response. Validation errors
// become validationStatus: 400 for query parameters, 422 for submitted
// entries.
func FromError(err error, validationStatus int) *JSONResponseBuilder {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		code := CodeBadRequest
		if validationStatus == http.StatusUnprocessableEntity {
			code = CodeInvalidEntry
		}
		return NewJSONResponse().Status(validationStatus).Data(ErrorBody{Error: ve.Error(), Field: ve.Field, Code: code})
	case errors.Is(err, core.ErrUnauthenticated):
		return UnauthorizedError()
	case core.IsStore(err):
		return ServiceUnavailableError(core.ErrStoreUnavailable.Error())
	default:
		return InternalServerError("internal error")
	}
}
