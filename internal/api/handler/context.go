package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/daytrip/daytrip/internal/api/middleware"
	"github.com/daytrip/daytrip/internal/api/models"
	"github.com/daytrip/daytrip/internal/api/response"
)

// maxBodyBytes bounds request bodies. Trip requests with a full place pool
// are the largest.
const maxBodyBytes = 4 << 20

// GetClientID retrieves the authenticated client ID from the context.
// This is a convenience wrapper around middleware.GetClientID.
func GetClientID(ctx context.Context) string {
	return middleware.GetClientID(ctx)
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the error response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			response.BadRequest(w, r, "request body too large", nil)
		case errors.Is(err, io.EOF):
			response.BadRequest(w, r, "request body is empty", nil)
		default:
			response.BadRequest(w, r, "invalid JSON body", nil)
		}
		return false
	}

	if errs := models.Validate(dst); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return false
	}
	return true
}
