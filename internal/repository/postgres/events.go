package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ktsaryk/eventhub/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a published event and returns its ID.
//
// Returns:
//   - error: repository.ErrConflict if the insert violates a uniqueness
//     constraint.
func (r *EventRepo) Create(ctx context.Context, e domain.Event) (uuid.UUID, error) {
	const op = "postgres.EventRepo.Create"

	db := r.handle()

	id := uuid.New()
	if err := db.QueryRow(ctx,
		`INSERT INTO events(id, organizer_id, title, description, location, category, image_url, is_featured, starts_at, price, capacity)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
     	 RETURNING id`,
		id, e.OrganizerID, e.Title, e.Description, e.Location, e.Category,
		e.ImageURL, e.IsFeatured, e.Starts, e.Price, e.Capacity,
	).Scan(&id); err != nil {
		return uuid.Nil, wrapDBErr(op, err)
	}

	return id, nil
}

// CreateEvent is the Store-level wrapper used by the events service.
func (s *Store) CreateEvent(ctx context.Context, e domain.Event) (uuid.UUID, error) {
	return s.Events().Create(ctx, e)
}
