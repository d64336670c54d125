package handler

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/api/models"
	"github.com/daytrip/daytrip/internal/api/response"
	"github.com/daytrip/daytrip/internal/featureflags"
)

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags - update feature flags.
// The update is all or nothing.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var input models.FeatureFlagUpsertRequest
	if !decodeAndValidate(w, r, &input) {
		return
	}

	keys := make([]string, 0, len(input.Flags))
	for k := range input.Flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := make([]*featureflags.Flag, 0, len(keys))
	for _, k := range keys {
		flags = append(flags, &featureflags.Flag{Key: k, Value: input.Flags[k]})
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		switch {
		case errors.Is(err, featureflags.ErrUnknownFlag), errors.Is(err, featureflags.ErrInvalidValue):
			response.BadRequest(w, r, err.Error(), nil)
		default:
			h.logger.Error().Err(err).Msg("failed to update feature flags")
			response.InternalError(w, r, "failed to update feature flags")
		}
		return
	}

	h.logger.Info().
		Strs("flags", keys).
		Str("client_id", GetClientID(r.Context())).
		Msg("feature flags updated via api")

	response.JSON(w, r, http.StatusOK, h.list(r))
}

// ResetFeatureFlag handles DELETE /v1/admin/feature-flags/{key} - drop a
// stored override so the flag's default applies.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.service.ResetFlag(r.Context(), key); err != nil {
		if errors.Is(err, featureflags.ErrUnknownFlag) {
			response.NotFound(w, r, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("flag", key).Msg("failed to reset feature flag")
		response.InternalError(w, r, "failed to reset feature flag")
		return
	}

	h.logger.Info().
		Str("flag", key).
		Str("client_id", GetClientID(r.Context())).
		Msg("feature flag reset via api")

	response.JSON(w, r, http.StatusOK, h.list(r))
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate - drop the flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}

func (h *FeatureFlagsHandler) list(r *http.Request) models.FeatureFlagList {
	flags := h.service.GetAllFlags(r.Context())

	out := models.FeatureFlagList{Flags: make([]models.FeatureFlag, 0, len(flags))}
	for _, d := range featureflags.Definitions() {
		f := flags[d.Key]
		item := models.FeatureFlag{
			Key:         d.Key,
			Value:       d.Default,
			Default:     d.Default,
			Kind:        string(d.Kind),
			Description: d.Description,
		}
		if f != nil {
			item.Value = f.Value
			item.UpdatedAt = models.Timestamp(f.UpdatedAt)
		}
		out.Flags = append(out.Flags, item)
	}
	return out
}
