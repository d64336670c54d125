package catalog

import "context"

// Repository defines the interface for catalog persistence.
type Repository interface {
	// Get retrieves a place by ID.
	Get(ctx context.Context, id string) (*Place, error)

	// GetMany retrieves the places with the given IDs. Missing IDs are
	// skipped; the result is in no particular order.
	GetMany(ctx context.Context, ids []string) ([]*Place, error)

	// List retrieves places ordered by ID.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Upsert creates or replaces a place.
	Upsert(ctx context.Context, p *Place) error

	// Delete deletes a place by ID. Returns ErrPlaceNotFound if it doesn't exist.
	Delete(ctx context.Context, id string) error
}
