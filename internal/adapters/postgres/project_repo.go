package postgres

import (
	"context"
	"fmt"

	"github.com/canopylabs/canopy/internal/core/domain"
)

// ProjectRepo implements ports.ProjectRepository with pgx.
type ProjectRepo struct {
	db *DB
}

// NewProjectRepo creates a new ProjectRepo.
func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Create inserts a project and fills in its generated ID.
func (r *ProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO projects (owner_id, name, public)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, p.OwnerID, p.Name, p.Public).Scan(&p.ID, &p.CreatedAt)
}

// GetByID returns a project with its pin count.
func (r *ProjectRepo) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	err := r.db.Pool.QueryRow(ctx, `
		SELECT p.id, p.owner_id, p.name, p.public, p.created_at,
		       (SELECT count(*) FROM pins WHERE project_id = p.id)
		FROM projects p WHERE p.id = $1
	`, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Public, &p.CreatedAt, &p.PinCount)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByOwner returns a user's projects, newest first.
func (r *ProjectRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Project, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT p.id, p.owner_id, p.name, p.public, p.created_at,
		       (SELECT count(*) FROM pins WHERE project_id = p.id)
		FROM projects p
		WHERE p.owner_id = $1
		ORDER BY p.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Public, &p.CreatedAt, &p.PinCount); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Delete removes a project; pins cascade in the schema.
func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s not found", id)
	}
	return nil
}
