package models

import (
	"github.com/daytrip/daytrip/internal/place"
)

// PlaceInput is a candidate place as sent by API clients.
type PlaceInput struct {
	ID              string                    `json:"id,omitempty" validate:"omitempty,max=64"`
	Name            string                    `json:"name" validate:"required,max=200"`
	Rating          *float64                  `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	Lat             float64                   `json:"lat" validate:"gte=-90,lte=90"`
	Lon             float64                   `json:"lon" validate:"gte=-180,lte=180"`
	DurationMinutes *int                      `json:"durationMinutes,omitempty" validate:"omitempty,gt=0,lte=1440"`
	Category        string                    `json:"category,omitempty" validate:"max=50"`
	DayPart         string                    `json:"dayPart" validate:"required"`
	Hours           map[int][]place.TimeRange `json:"hours" validate:"dive,keys,min=1,max=7,endkeys,max=8"`
	RouteURL        string                    `json:"routeUrl,omitempty" validate:"omitempty,url"`
}

// Record converts the input to a place record.
func (p *PlaceInput) Record() place.Record {
	return place.Record{
		ID:              p.ID,
		Name:            p.Name,
		Rating:          p.Rating,
		Lat:             p.Lat,
		Lon:             p.Lon,
		DurationMinutes: p.DurationMinutes,
		Category:        p.Category,
		DayPart:         p.DayPart,
		Hours:           p.Hours,
		RouteURL:        p.RouteURL,
	}
}

// PlaceUpsertRequest is the body of PUT /v1/places/{placeId}.
type PlaceUpsertRequest struct {
	Region string     `json:"region" validate:"required,max=64"`
	Place  PlaceInput `json:"place"`
}

// CatalogPlace is a catalog entry as returned by the API.
type CatalogPlace struct {
	ID        string       `json:"id"`
	Region    string       `json:"region"`
	Place     place.Record `json:"place"`
	CreatedAt Timestamp    `json:"createdAt"`
	UpdatedAt Timestamp    `json:"updatedAt"`
}

// PagedPlaces is one page of catalog places.
type PagedPlaces struct {
	Items []CatalogPlace    `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
