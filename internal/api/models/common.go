// Package models provides request and response models for the DayTrip API.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// HealthStatus is the outcome of a probe or dependency check.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// PagedResponseMeta describes one page of a cursor-paginated listing.
// NextCursor is omitted on the last page.
type PagedResponseMeta struct {
	Limit      int     `json:"limit"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// Timestamp is a time rendered as RFC 3339 in UTC at second precision.
// The zero time encodes as null.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(time.Time(t).UTC().Truncate(time.Second).Format(time.RFC3339))
}

// UnmarshalJSON accepts RFC 3339 with or without fractional seconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(parsed)
	return nil
}

// IsZero reports whether t holds the zero time.
func (t Timestamp) IsZero() bool { return time.Time(t).IsZero() }

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time { return time.Time(t) }
