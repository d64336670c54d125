// Package handler provides HTTP handlers for the DayTrip API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/daytrip/daytrip/internal/api/models"
	"github.com/daytrip/daytrip/internal/api/response"
	"github.com/daytrip/daytrip/internal/featureflags"
	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/provider/resilience"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// DependencyCheck probes a dependency the API needs to serve traffic.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouteCache exposes route cache statistics.
type RouteCache interface {
	CacheStats() geo.CacheStats
}

// OpsHandlerConfig holds the collaborators of the ops endpoints. Everything
// except the version info is optional.
type OpsHandlerConfig struct {
	Version      string
	BuildTime    string
	Checks       []DependencyCheck
	Providers    *resilience.Registry
	RouteCache   RouteCache
	FeatureFlags *featureflags.Service
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg     OpsHandlerConfig
	now     func() time.Time
	started time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now, started: time.Now()}
}

func (h *OpsHandler) health(status models.HealthStatus) models.Health {
	now := h.now()
	return models.Health{
		Status:        status,
		Time:          models.Timestamp(now),
		Version:       h.cfg.Version,
		BuildTime:     h.cfg.BuildTime,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.health(models.HealthStatusOK))
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Any failing
// dependency makes the instance unready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkSubsystems(r.Context())

	health := h.health(models.HealthStatusOK)
	health.Checks = make(map[string]models.HealthStatus, len(subsystems))
	for _, s := range subsystems {
		health.Checks[s.Name] = s.Status
		health.Status = health.Status.Worse(s.Status)
	}
	if health.Status != models.HealthStatusOK {
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: h.checkSubsystems(ctx),
		Providers:  h.providerStatuses(),
	}

	// Anything short of OK degrades the system as a whole.
	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = status.Status.Worse(models.HealthStatusDegraded)
		}
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			status.Status = status.Status.Worse(models.HealthStatusDegraded)
		}
	}

	if h.cfg.RouteCache != nil {
		stats := h.cfg.RouteCache.CacheStats()
		status.RouteCache = &models.RouteCacheStatus{
			Provider:     stats.Provider,
			TotalEntries: stats.TotalEntries,
			FreshEntries: stats.FreshEntries,
			StaleEntries: stats.StaleEntries,
		}
	}

	status.ActiveFlags = h.activeFlags(ctx)

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkSubsystems(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.cfg.Checks))
	for _, c := range h.cfg.Checks {
		checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		start := time.Now()
		err := c.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{
			Name:      c.Name,
			Status:    models.HealthStatusOK,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.cfg.Providers == nil {
		return []models.ProviderStatus{}
	}

	statuses := h.cfg.Providers.Statuses()
	out := make([]models.ProviderStatus, 0, len(statuses))
	for _, s := range statuses {
		p := models.ProviderStatus{
			Provider: s.Name,
			Status:   models.HealthStatusOK,
			Circuit:  s.Circuit,
			Requests: s.Requests,
			Failures: s.Failures,
		}
		switch s.Status {
		case resilience.StatusDown:
			p.Status = models.HealthStatusFail
		case resilience.StatusDegraded:
			p.Status = models.HealthStatusDegraded
		}
		if s.LastSuccessAt != nil {
			ts := models.Timestamp(*s.LastSuccessAt)
			p.LastSuccessAt = &ts
		}
		if s.LastFailureAt != nil {
			ts := models.Timestamp(*s.LastFailureAt)
			p.LastFailureAt = &ts
		}
		if s.LastError != "" {
			msg := s.LastError
			p.Message = &msg
		}
		out = append(out, p)
	}
	return out
}

// activeFlags lists flags whose value differs from the default.
func (h *OpsHandler) activeFlags(ctx context.Context) []string {
	if h.cfg.FeatureFlags == nil {
		return nil
	}
	flags := h.cfg.FeatureFlags.GetAllFlags(ctx)

	var active []string
	for _, d := range featureflags.Definitions() {
		f, ok := flags[d.Key]
		if !ok {
			continue
		}
		v, err := featureflags.Normalize(d.Key, f.Value)
		if err != nil || v == d.Default {
			continue
		}
		active = append(active, d.Key)
	}
	return active
}
