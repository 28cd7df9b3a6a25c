package postgres

import (
	"context"

	"github.com/canopylabs/canopy/internal/core/domain"
)

// NoteRepo implements ports.NoteRepository. Notes are append-only.
type NoteRepo struct {
	db *DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// Insert appends a note to a pin.
func (r *NoteRepo) Insert(ctx context.Context, n *domain.Note) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO notes (pin_id, text) VALUES ($1, $2)
		RETURNING id, created_at
	`, n.PinID, n.Text).Scan(&n.ID, &n.CreatedAt)
}

// ListByPin returns a pin's notes in creation order.
func (r *NoteRepo) ListByPin(ctx context.Context, pinID string) ([]domain.Note, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, pin_id, text, created_at
		FROM notes WHERE pin_id = $1 ORDER BY created_at
	`, pinID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.PinID, &n.Text, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
