// Package response writes JSON and RFC7807 problem responses tagged with
// the request id.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/daytrip/daytrip/internal/api/middleware"
	"github.com/daytrip/daytrip/internal/api/models"
)

// JSON writes data as JSON with the given status. A nil data writes no body.
// HTML characters are left unescaped so place names round-trip as sent.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, r, status, "", data)
}

// Created writes a 201 with a Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	write(w, r, http.StatusCreated, location, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusNoContent, "", nil)
}

func write(w http.ResponseWriter, r *http.Request, status int, location string, data interface{}) {
	h := w.Header()
	if id := middleware.GetRequestID(r.Context()); id != "" {
		h.Set("X-Request-Id", id)
	}
	if location != "" {
		h.Set("Location", location)
	}
	if data == nil {
		w.WriteHeader(status)
		return
	}

	h.Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

// Problem writes an RFC7807 problem of the given kind for this request.
func Problem(w http.ResponseWriter, r *http.Request, kind models.ProblemKind, detail string) {
	kind.New(middleware.GetRequestID(r.Context()), detail).Write(w, r)
}

// BadRequest writes a 400 with optional per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errs []models.FieldError) {
	models.NewValidationProblem(middleware.GetRequestID(r.Context()), detail, errs).Write(w, r)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.ProblemNotFound, detail)
}

// GatewayTimeout writes a 504 for a plan that outlived its deadline.
func GatewayTimeout(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.ProblemTimeout, detail)
}

// InternalError writes a 500. The detail must not leak internals.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.ProblemInternal, detail)
}

// ServiceUnavailable writes a 503.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.ProblemUnavailable, detail)
}
