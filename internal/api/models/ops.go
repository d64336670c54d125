package models

// Health is the body of the liveness and readiness probes.
type Health struct {
	Status    HealthStatus `json:"status"`
	Time      Timestamp    `json:"time"`
	Version   string       `json:"version,omitempty"`
	BuildTime string       `json:"buildTime,omitempty"`

	// UptimeSeconds is how long the process has been serving.
	UptimeSeconds int64 `json:"uptimeSeconds"`

	// Checks maps each readiness dependency to its result.
	Checks map[string]HealthStatus `json:"checks,omitempty"`
}

// SystemStatus is the admin view of dependencies, geo providers and flags.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
	RouteCache *RouteCacheStatus `json:"routeCache,omitempty"`

	// ActiveFlags lists feature flags that differ from their defaults.
	ActiveFlags []string `json:"activeFlags,omitempty"`
}

// SubsystemStatus is the result of one dependency check.
type SubsystemStatus struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	LatencyMs int64        `json:"latencyMs"`
	Detail    *string      `json:"detail,omitempty"`
}

// ProviderStatus is the circuit state of one geo provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	Circuit       string       `json:"circuit,omitempty"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"failures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// RouteCacheStatus summarizes the in-process route cache.
type RouteCacheStatus struct {
	Provider     string `json:"provider"`
	TotalEntries int    `json:"totalEntries"`
	FreshEntries int    `json:"freshEntries"`
	StaleEntries int    `json:"staleEntries"`
}

// Worse returns the more severe of two statuses.
func (s HealthStatus) Worse(other HealthStatus) HealthStatus {
	if severity(other) > severity(s) {
		return other
	}
	return s
}

func severity(s HealthStatus) int {
	switch s {
	case HealthStatusFail:
		return 2
	case HealthStatusDegraded:
		return 1
	default:
		return 0
	}
}
