package models

// FeatureFlag is a feature flag with its definition.
type FeatureFlag struct {
	Key         string      `json:"key"`
	Value       interface{} `json:"value"`
	Default     interface{} `json:"default"`
	Kind        string      `json:"kind"`
	Description string      `json:"description,omitempty"`
	UpdatedAt   Timestamp   `json:"updatedAt"`
}

// FeatureFlagList is the response of GET /v1/admin/feature-flags.
type FeatureFlagList struct {
	Flags []FeatureFlag `json:"flags"`
}

// FeatureFlagUpsertRequest is the body of PUT /v1/admin/feature-flags.
type FeatureFlagUpsertRequest struct {
	Flags map[string]interface{} `json:"flags" validate:"required,min=1"`
}
