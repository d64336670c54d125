package featureflags

import (
	"context"
	"errors"
	"sort"
)

// ErrFlagNotFound is returned when no value is stored for a flag. The
// service then falls back to the flag's default.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores flag overrides. Only flags that differ from their
// defaults need to be stored.
type Repository interface {
	Get(ctx context.Context, key string) (*Flag, error)

	// List returns every stored flag ordered by key.
	List(ctx context.Context) ([]*Flag, error)

	// Put stores all flags or none of them.
	Put(ctx context.Context, flags ...*Flag) error

	// Delete drops a stored override. It returns ErrFlagNotFound when the
	// flag had none.
	Delete(ctx context.Context, key string) error
}

func sortedByKey(flags map[string]*Flag) []*Flag {
	out := make([]*Flag, 0, len(flags))
	for _, f := range flags {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
