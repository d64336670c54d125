// Package featureflags provides runtime switches for the planner, stored in
// a repository and cached in memory.
package featureflags

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagPlannerRetryNextCandidate makes the planner try the next-best
	// candidate when the picked one cannot fit the day.
	FlagPlannerRetryNextCandidate = "planner_retry_next_candidate"

	// FlagPlannerTopCandidates is how many top-scored candidates the planner
	// picks from at random.
	FlagPlannerTopCandidates = "planner_top_candidates"

	// FlagGeocodingDisabled skips geocoding of named start and end points.
	FlagGeocodingDisabled = "geocoding_disabled"
)

// Flag validation errors.
var (
	ErrUnknownFlag  = errors.New("unknown feature flag")
	ErrInvalidValue = errors.New("invalid feature flag value")
)

// Kind is the value type of a flag.
type Kind string

const (
	KindBool Kind = "bool"
	KindInt  Kind = "int"
)

// Definition describes a known flag.
type Definition struct {
	Key         string
	Kind        Kind
	Default     interface{}
	Description string

	// Min and Max bound integer flags.
	Min, Max int
}

var definitions = []Definition{
	{
		Key:         FlagPlannerRetryNextCandidate,
		Kind:        KindBool,
		Default:     false,
		Description: "Try the next-best candidate when the picked one does not fit the day",
	},
	{
		Key:         FlagPlannerTopCandidates,
		Kind:        KindInt,
		Default:     5,
		Description: "Number of top-scored candidates eligible for the random pick",
		Min:         1,
		Max:         20,
	},
	{
		Key:         FlagGeocodingDisabled,
		Kind:        KindBool,
		Default:     false,
		Description: "Use the default landmark instead of geocoding start and end points",
	},
}

// Definitions returns every known flag ordered by key.
func Definitions() []Definition {
	out := append([]Definition(nil), definitions...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Lookup returns the definition of a flag.
func Lookup(key string) (Definition, bool) {
	for _, d := range definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Normalize checks value against the definition of key and returns it in
// canonical form (bool or int).
func Normalize(key string, value interface{}) (interface{}, error) {
	def, ok := Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}

	switch def.Kind {
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, key)
	case KindInt:
		var n int
		switch v := value.(type) {
		case int:
			n = v
		case float64:
			// JSON unmarshals numbers as float64
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidValue, key)
			}
			n = int(v)
		default:
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidValue, key)
		}
		if n < def.Min || n > def.Max {
			return nil, fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidValue, key, def.Min, def.Max)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidValue, key)
}

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return defaultValue
	}
}

// IntValue returns the flag value as an integer.
// Returns the default value if the flag is nil or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// DefaultFlags returns every known flag at its default value.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	flags := make(map[string]*Flag, len(definitions))
	for _, d := range definitions {
		flags[d.Key] = &Flag{Key: d.Key, Value: d.Default, UpdatedAt: now}
	}
	return flags
}
