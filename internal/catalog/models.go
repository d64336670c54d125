// Package catalog stores curated candidate places that trip requests can
// reference by id or region instead of sending them inline.
package catalog

import (
	"errors"
	"time"

	"github.com/daytrip/daytrip/internal/place"
)

// Repository errors.
var (
	ErrPlaceNotFound = errors.New("place not found")
)

// DefaultListLimit is the page size when none is given.
const DefaultListLimit = 50

// Place is a catalog entry. Record.ID always equals ID.
type Place struct {
	ID        string
	Region    string
	Record    place.Record
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListOptions filters and pages catalog listings.
type ListOptions struct {
	Region  string
	DayPart string
	Limit   int
	// Cursor is the id of the last item of the previous page.
	Cursor string
}

// ListResult contains one page of places ordered by id.
type ListResult struct {
	Items      []*Place
	NextCursor string
}
