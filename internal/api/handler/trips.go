package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/api/models"
	"github.com/daytrip/daytrip/internal/api/response"
	"github.com/daytrip/daytrip/internal/catalog"
	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/planner"
)

// DefaultPlanTimeout bounds a single planning request.
const DefaultPlanTimeout = 20 * time.Second

// TripPlanner plans itineraries.
type TripPlanner interface {
	PlanTrip(ctx context.Context, records []place.Record, req planner.Requirement) (*planner.Result, error)
}

// PlaceResolver turns catalog ids or a region into place records.
type PlaceResolver interface {
	Resolve(ctx context.Context, ids []string, region string) ([]place.Record, error)
}

// TripsHandler handles trip planning endpoints.
type TripsHandler struct {
	planner TripPlanner
	catalog PlaceResolver
	timeout time.Duration
	logger  zerolog.Logger
}

// NewTripsHandler creates a new TripsHandler. catalog may be nil, in which
// case only inline places are accepted.
func NewTripsHandler(p TripPlanner, catalog PlaceResolver, timeout time.Duration, logger zerolog.Logger) *TripsHandler {
	if timeout <= 0 {
		timeout = DefaultPlanTimeout
	}
	return &TripsHandler{
		planner: p,
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

// PlanTrip handles POST /v1/trips:plan - plan a day trip.
func (h *TripsHandler) PlanTrip(w http.ResponseWriter, r *http.Request) {
	var input models.PlanTripRequest
	if !decodeAndValidate(w, r, &input) {
		return
	}

	sources := 0
	if len(input.Places) > 0 {
		sources++
	}
	if len(input.PlaceIDs) > 0 {
		sources++
	}
	if input.Region != "" {
		sources++
	}
	if sources != 1 {
		response.BadRequest(w, r, "exactly one of places, placeIds or region is required", []models.FieldError{
			{Field: "places", Message: "exactly one of places, placeIds or region is required", Code: "REQUIRED"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, ok := h.candidates(ctx, w, r, &input)
	if !ok {
		return
	}

	result, err := h.planner.PlanTrip(ctx, records, input.PlannerRequirement())
	if err != nil {
		h.writePlanError(w, r, err)
		return
	}

	h.logger.Debug().
		Str("plan_id", result.PlanID).
		Str("client_id", GetClientID(r.Context())).
		Int("candidates", len(records)).
		Int("stops", result.Summary.Stops).
		Msg("trip planned via api")

	response.JSON(w, r, http.StatusOK, models.NewPlanTripResponse(result, len(records)))
}

// candidates collects the place records a request plans from.
func (h *TripsHandler) candidates(ctx context.Context, w http.ResponseWriter, r *http.Request, input *models.PlanTripRequest) ([]place.Record, bool) {
	if len(input.Places) > 0 {
		records := make([]place.Record, len(input.Places))
		for i := range input.Places {
			records[i] = input.Places[i].Record()
		}
		return records, true
	}

	if h.catalog == nil {
		response.ServiceUnavailable(w, r, "place catalog is not configured")
		return nil, false
	}

	records, err := h.catalog.Resolve(ctx, input.PlaceIDs, input.Region)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrPlaceNotFound):
		response.NotFound(w, r, err.Error())
		return nil, false
	default:
		h.writePlanError(w, r, err)
		return nil, false
	}

	if len(records) == 0 {
		response.NotFound(w, r, "no catalog places in region "+input.Region)
		return nil, false
	}
	return records, true
}

func (h *TripsHandler) writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *place.ValidationError
	switch {
	case errors.As(err, &vErr):
		response.BadRequest(w, r, vErr.Error(), []models.FieldError{
			{Field: vErr.Field, Message: vErr.Reason, Code: "INVALID"},
		})
	case errors.Is(err, context.DeadlineExceeded):
		response.GatewayTimeout(w, r, "planning did not finish in time")
	case errors.Is(err, context.Canceled):
		h.logger.Debug().Err(err).Msg("client went away during planning")
		response.ServiceUnavailable(w, r, "planning was cancelled")
	default:
		h.logger.Error().Err(err).Msg("trip planning failed")
		response.InternalError(w, r, "trip planning failed")
	}
}
