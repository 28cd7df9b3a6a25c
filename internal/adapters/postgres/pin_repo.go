package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/canopylabs/canopy/internal/core/domain"
)

// PinRepo implements ports.PinRepository with pgx.
type PinRepo struct {
	db *DB
}

// NewPinRepo creates a new PinRepo.
func NewPinRepo(db *DB) *PinRepo {
	return &PinRepo{db: db}
}

const pinColumns = `
	id, project_id, name,
	ST_Y(location::geometry) as lat,
	ST_X(location::geometry) as lon,
	COALESCE(tags, '{}'), COALESCE(photos, '{}'), COALESCE(metadata, '{}'),
	created_at, updated_at`

// Create inserts a pin and fills in its generated ID.
func (r *PinRepo) Create(ctx context.Context, p *domain.Pin) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO pins (project_id, name, location, tags, photos, metadata)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, p.ProjectID, p.Name, p.Location.Lon, p.Location.Lat,
		p.Tags, p.Photos, p.Metadata,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// Update rewrites a pin's mutable fields.
func (r *PinRepo) Update(ctx context.Context, p *domain.Pin) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE pins
		SET name = $2,
		    location = ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography,
		    tags = $5, photos = $6, metadata = $7, updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.Location.Lon, p.Location.Lat, p.Tags, p.Photos, p.Metadata)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pin %s not found", p.ID)
	}
	return nil
}

// UpsertBatch inserts many pins using pgx.Batch (bulk import path).
func (r *PinRepo) UpsertBatch(ctx context.Context, pins []domain.Pin) error {
	batch := &pgx.Batch{}
	for _, p := range pins {
		batch.Queue(`
			INSERT INTO pins (project_id, name, location, tags, photos, metadata)
			VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7)
			ON CONFLICT (project_id, name) DO UPDATE
			SET location = EXCLUDED.location, tags = EXCLUDED.tags,
			    metadata = EXCLUDED.metadata, updated_at = now()
		`, p.ProjectID, p.Name, p.Location.Lon, p.Location.Lat,
			p.Tags, p.Photos, p.Metadata)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range pins {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByID returns a pin by UUID.
func (r *PinRepo) GetByID(ctx context.Context, id string) (*domain.Pin, error) {
	var p domain.Pin
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+pinColumns+` FROM pins WHERE id = $1`, id,
	).Scan(
		&p.ID, &p.ProjectID, &p.Name,
		&p.Location.Lat, &p.Location.Lon,
		&p.Tags, &p.Photos, &p.Metadata,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a pin and its notes/reminders (cascade in schema).
func (r *PinRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM pins WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pin %s not found", id)
	}
	return nil
}

// FindInBounds returns pins inside a bounding box using ST_MakeEnvelope.
// An empty projectID matches pins from all public projects.
func (r *PinRepo) FindInBounds(ctx context.Context, box domain.BoundingBox, projectID string, limit int) ([]domain.Pin, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+pinColumns+`
		FROM pins
		WHERE location::geometry && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		  AND ($5 = '' OR project_id::text = $5)
		  AND ($5 <> '' OR project_id IN (SELECT id FROM projects WHERE public))
		ORDER BY created_at DESC
		LIMIT $6
	`, box.West, box.South, box.East, box.North, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPins(rows)
}

// ListByProject returns every pin in a project, oldest first.
func (r *PinRepo) ListByProject(ctx context.Context, projectID string) ([]domain.Pin, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+pinColumns+` FROM pins WHERE project_id = $1 ORDER BY created_at`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPins(rows)
}

// FindNearby returns pins within radiusMeters using PostGIS ST_DWithin.
func (r *PinRepo) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Pin, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+pinColumns+`,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance
		FROM pins
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
		LIMIT $4
	`, lon, lat, radiusMeters, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pins []domain.Pin
	for rows.Next() {
		var p domain.Pin
		var dist float64
		if err := rows.Scan(
			&p.ID, &p.ProjectID, &p.Name,
			&p.Location.Lat, &p.Location.Lon,
			&p.Tags, &p.Photos, &p.Metadata,
			&p.CreatedAt, &p.UpdatedAt,
			&dist,
		); err != nil {
			return nil, err
		}
		p.Distance = &dist
		pins = append(pins, p)
	}
	return pins, rows.Err()
}

func scanPins(rows pgx.Rows) ([]domain.Pin, error) {
	var pins []domain.Pin
	for rows.Next() {
		var p domain.Pin
		if err := rows.Scan(
			&p.ID, &p.ProjectID, &p.Name,
			&p.Location.Lat, &p.Location.Lon,
			&p.Tags, &p.Photos, &p.Metadata,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return pins, rows.Err()
}
