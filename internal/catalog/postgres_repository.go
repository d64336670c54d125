package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daytrip/daytrip/internal/place"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Opening hours are stored as JSONB keyed by ISO weekday.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL catalog repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectPlaces = `
	SELECT
		id, region, name, rating, lat, lon, duration_minutes,
		category, day_part, hours, route_url,
		created_at, updated_at
	FROM places
`

// Get retrieves a place by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Place, error) {
	p, err := scanPlace(r.pool.QueryRow(ctx, selectPlaces+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlaceNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetMany retrieves the places with the given IDs.
func (r *PostgresRepository) GetMany(ctx context.Context, ids []string) ([]*Place, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, selectPlaces+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectPlaces(rows)
}

// List retrieves places ordered by ID.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	query := selectPlaces + `
		WHERE ($1 = '' OR region = $1)
		  AND ($2 = '' OR lower(day_part) = lower($2))
		  AND ($3 = '' OR id > $3)
		ORDER BY id
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, opts.Region, opts.DayPart, opts.Cursor, fetchLimit)
	if err != nil {
		return nil, err
	}
	places, err := collectPlaces(rows)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Items: places}
	if len(places) > limit {
		result.Items = places[:limit]
		result.NextCursor = places[limit-1].ID
	}
	return result, nil
}

// Upsert creates or replaces a place.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Place) error {
	hours, err := json.Marshal(p.Record.Hours)
	if err != nil {
		return fmt.Errorf("encode hours: %w", err)
	}

	query := `
		INSERT INTO places (
			id, region, name, rating, lat, lon, duration_minutes,
			category, day_part, hours, route_url,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			region = EXCLUDED.region,
			name = EXCLUDED.name,
			rating = EXCLUDED.rating,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			duration_minutes = EXCLUDED.duration_minutes,
			category = EXCLUDED.category,
			day_part = EXCLUDED.day_part,
			hours = EXCLUDED.hours,
			route_url = EXCLUDED.route_url,
			updated_at = EXCLUDED.updated_at
	`

	rec := p.Record
	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Region,
		rec.Name,
		rec.Rating,
		rec.Lat,
		rec.Lon,
		rec.DurationMinutes,
		rec.Category,
		rec.DayPart,
		hours,
		rec.RouteURL,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return err
}

// Delete deletes a place by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM places WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlaceNotFound
	}
	return nil
}

func collectPlaces(rows pgx.Rows) ([]*Place, error) {
	defer rows.Close()

	var places []*Place
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		places = append(places, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return places, nil
}

func scanPlace(row pgx.Row) (*Place, error) {
	var (
		p     Place
		hours []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Region,
		&p.Record.Name,
		&p.Record.Rating,
		&p.Record.Lat,
		&p.Record.Lon,
		&p.Record.DurationMinutes,
		&p.Record.Category,
		&p.Record.DayPart,
		&hours,
		&p.Record.RouteURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(hours) > 0 {
		p.Record.Hours = make(map[int][]place.TimeRange)
		if err := json.Unmarshal(hours, &p.Record.Hours); err != nil {
			return nil, fmt.Errorf("decode hours of %s: %w", p.ID, err)
		}
	}
	p.Record.ID = p.ID
	return &p, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
