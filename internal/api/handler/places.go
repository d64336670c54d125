package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/api/models"
	"github.com/daytrip/daytrip/internal/api/response"
	"github.com/daytrip/daytrip/internal/catalog"
	"github.com/daytrip/daytrip/internal/place"
)

// maxListLimit bounds the page size of catalog listings.
const maxListLimit = 200

// PlacesHandler handles place catalog endpoints.
type PlacesHandler struct {
	service *catalog.Service
	logger  zerolog.Logger
}

// NewPlacesHandler creates a new PlacesHandler.
func NewPlacesHandler(service *catalog.Service, logger zerolog.Logger) *PlacesHandler {
	return &PlacesHandler{service: service, logger: logger}
}

// ListPlaces handles GET /v1/places - list catalog places.
func (h *PlacesHandler) ListPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := catalog.DefaultListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: "must be between 1 and " + strconv.Itoa(maxListLimit), Code: "OUT_OF_RANGE"},
			})
			return
		}
		limit = n
	}

	result, err := h.service.List(r.Context(), catalog.ListOptions{
		Region:  q.Get("region"),
		DayPart: q.Get("dayPart"),
		Limit:   limit,
		Cursor:  q.Get("cursor"),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list places")
		response.InternalError(w, r, "failed to list places")
		return
	}

	page := models.PagedPlaces{
		Items: make([]models.CatalogPlace, 0, len(result.Items)),
		Meta:  models.PagedResponseMeta{Limit: limit},
	}
	for _, p := range result.Items {
		page.Items = append(page.Items, toCatalogPlace(p))
	}
	if result.NextCursor != "" {
		next := result.NextCursor
		page.Meta.NextCursor = &next
	}
	response.JSON(w, r, http.StatusOK, page)
}

// GetPlace handles GET /v1/places/{placeId} - get a catalog place.
func (h *PlacesHandler) GetPlace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "placeId")

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toCatalogPlace(p))
}

// PutPlace handles PUT /v1/places/{placeId} - create or replace a catalog place.
func (h *PlacesHandler) PutPlace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "placeId")

	var input models.PlaceUpsertRequest
	if !decodeAndValidate(w, r, &input) {
		return
	}

	p, err := h.service.Put(r.Context(), id, input.Region, input.Place.Record())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info().
		Str("place_id", p.ID).
		Str("region", p.Region).
		Str("client_id", GetClientID(r.Context())).
		Msg("catalog place stored")

	response.JSON(w, r, http.StatusOK, toCatalogPlace(p))
}

// DeletePlace handles DELETE /v1/places/{placeId} - remove a catalog place.
func (h *PlacesHandler) DeletePlace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "placeId")

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

func (h *PlacesHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *place.ValidationError
	switch {
	case errors.Is(err, catalog.ErrPlaceNotFound):
		response.NotFound(w, r, "place not found")
	case errors.As(err, &vErr):
		response.BadRequest(w, r, vErr.Error(), []models.FieldError{
			{Field: vErr.Field, Message: vErr.Reason, Code: "INVALID"},
		})
	default:
		h.logger.Error().Err(err).Msg("catalog operation failed")
		response.InternalError(w, r, "catalog operation failed")
	}
}

func toCatalogPlace(p *catalog.Place) models.CatalogPlace {
	return models.CatalogPlace{
		ID:        p.ID,
		Region:    p.Region,
		Place:     p.Record,
		CreatedAt: models.Timestamp(p.CreatedAt),
		UpdatedAt: models.Timestamp(p.UpdatedAt),
	}
}
