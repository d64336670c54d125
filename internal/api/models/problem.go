package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID echoes the request id so clients can quote it in reports.
	TraceID string `json:"traceId"`

	// Errors lists per-field validation failures, using the same field paths
	// as the request body (e.g. places[2].lat).
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation failure on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.daytrip.tw/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation       = problemBase + "validation-error"
	ProblemTypeUnauthorized     = problemBase + "unauthorized"
	ProblemTypeForbidden        = problemBase + "forbidden"
	ProblemTypeTLSRequired      = problemBase + "tls-required"
	ProblemTypeNotFound         = problemBase + "not-found"
	ProblemTypeUnsupportedMedia = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests  = problemBase + "too-many-requests"
	ProblemTypeInternal         = problemBase + "internal-error"
	ProblemTypeUnavailable      = problemBase + "service-unavailable"
	ProblemTypeTimeout          = problemBase + "planning-timeout"
)

// ProblemKind is one class of error the API reports.
type ProblemKind struct {
	Type   string
	Title  string
	Status int
}

// Problem kinds served by the API.
var (
	ProblemValidation       = ProblemKind{ProblemTypeValidation, "Validation error", http.StatusBadRequest}
	ProblemUnauthorized     = ProblemKind{ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized}
	ProblemForbidden        = ProblemKind{ProblemTypeForbidden, "Forbidden", http.StatusForbidden}
	ProblemTLSRequired      = ProblemKind{ProblemTypeTLSRequired, "TLS required", http.StatusForbidden}
	ProblemNotFound         = ProblemKind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	ProblemUnsupportedMedia = ProblemKind{ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType}
	ProblemTooManyRequests  = ProblemKind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	ProblemInternal         = ProblemKind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
	ProblemUnavailable      = ProblemKind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable}
	ProblemTimeout          = ProblemKind{ProblemTypeTimeout, "Planning timed out", http.StatusGatewayTimeout}
)

// New builds a problem of this kind for the request identified by traceID.
func (k ProblemKind) New(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.Type,
		Title:   k.Title,
		Status:  k.Status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// NewValidationProblem builds a 400 carrying per-field errors.
func NewValidationProblem(traceID, detail string, errs []FieldError) *Problem {
	p := ProblemValidation.New(traceID, detail)
	p.Errors = errs
	return p
}

// Write sends the problem, echoing the trace id as X-Request-Id. The
// instance is set from the request path when empty.
func (p *Problem) Write(w http.ResponseWriter, r *http.Request) {
	if p.Instance == "" && r != nil {
		p.Instance = r.URL.Path
	}
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(p)
}
