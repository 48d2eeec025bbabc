package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ktsaryk/eventhub/internal/domain"
)

// QueryRepo serves the read side: event lookups, booking listings and the
// derived stats. It never writes, so snapshot consistency is acceptable.
type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetEvent retrieves an event by its ID.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "postgres.QueryRepo.GetEvent"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT id, organizer_id, title, description, location, category, image_url, is_featured, starts_at, price, capacity, created_at
       	 FROM events WHERE id = $1`,
		id,
	).Scan(
		&e.ID,
		&e.OrganizerID,
		&e.Title,
		&e.Description,
		&e.Location,
		&e.Category,
		&e.ImageURL,
		&e.IsFeatured,
		&e.Starts,
		&e.Price,
		&e.Capacity,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// ListEvents lists events ordered by start time.
func (r *QueryRepo) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "postgres.QueryRepo.ListEvents"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, organizer_id, title, description, location, category, image_url, is_featured, starts_at, price, capacity, created_at
       	 FROM events
      	 ORDER BY starts_at
      	 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(
			&e.ID,
			&e.OrganizerID,
			&e.Title,
			&e.Description,
			&e.Location,
			&e.Category,
			&e.ImageURL,
			&e.IsFeatured,
			&e.Starts,
			&e.Price,
			&e.Capacity,
			&e.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// GetBooking retrieves a booking by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the booking is not found.
func (r *QueryRepo) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.QueryRepo.GetBooking"

	db := r.handle()

	var b domain.Booking
	var ref, code *string

	err := db.QueryRow(ctx,
		`SELECT id, event_id, attendee_id, ticket_count, total_price, payment_status, payment_ref, ticket_code, created_at
       	 FROM bookings WHERE id = $1`,
		id,
	).Scan(
		&b.ID,
		&b.EventID,
		&b.AttendeeID,
		&b.TicketCount,
		&b.TotalPrice,
		&b.PaymentStatus,
		&ref,
		&code,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if ref != nil {
		b.PaymentRef = *ref
	}
	if code != nil {
		b.TicketCode = *code
	}

	return &b, nil
}

// ListBookings lists all bookings of an event, newest last. All statuses are
// included; organizer dashboards filter on payment_status themselves.
//
// Returns:
//   - error: repository.ErrNotFound if the event does not exist.
func (r *QueryRepo) ListBookings(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error) {
	const op = "postgres.QueryRepo.ListBookings"

	db := r.handle()

	var exists bool
	if err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID,
	).Scan(&exists); err != nil {
		return nil, wrapDBErr(op, err)
	}
	if !exists {
		return nil, wrapDBErr(op, pgx.ErrNoRows)
	}

	rows, err := db.Query(ctx,
		`SELECT id, event_id, attendee_id, ticket_count, total_price, payment_status, payment_ref, ticket_code, created_at
       	 FROM bookings
      	 WHERE event_id = $1
      	 ORDER BY created_at`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		var b domain.Booking
		var ref, code *string

		if err := rows.Scan(
			&b.ID,
			&b.EventID,
			&b.AttendeeID,
			&b.TicketCount,
			&b.TotalPrice,
			&b.PaymentStatus,
			&ref,
			&code,
			&b.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		if ref != nil {
			b.PaymentRef = *ref
		}
		if code != nil {
			b.TicketCode = *code
		}

		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// OrganizerStats aggregates ticket and revenue totals over paid bookings of
// the organizer's events.
func (r *QueryRepo) OrganizerStats(ctx context.Context, organizerID uuid.UUID) (*domain.OrganizerStats, error) {
	const op = "postgres.QueryRepo.OrganizerStats"

	db := r.handle()

	var st domain.OrganizerStats
	err := db.QueryRow(ctx,
		`SELECT
       	 	(SELECT COUNT(*) FROM events WHERE organizer_id = $1),
       	 	COALESCE(SUM(b.ticket_count), 0),
       	 	COALESCE(SUM(b.total_price), 0)
     	 FROM bookings b
     	 JOIN events e ON e.id = b.event_id
     	 WHERE e.organizer_id = $1 AND b.payment_status = 'paid'`,
		organizerID,
	).Scan(&st.TotalEvents, &st.TotalTickets, &st.TotalRevenue)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &st, nil
}

// EventStats aggregates attendees and revenue over paid bookings of one
// event.
//
// Returns:
//   - error: repository.ErrNotFound if the event is not found.
func (r *QueryRepo) EventStats(ctx context.Context, eventID uuid.UUID) (*domain.EventStats, error) {
	const op = "postgres.QueryRepo.EventStats"

	db := r.handle()

	var st domain.EventStats
	err := db.QueryRow(ctx,
		`SELECT
       	 	COALESCE(SUM(b.ticket_count) FILTER (WHERE b.payment_status = 'paid'), 0),
       	 	COALESCE(SUM(b.total_price) FILTER (WHERE b.payment_status = 'paid'), 0)
     	 FROM events e
     	 LEFT JOIN bookings b ON b.event_id = e.id
     	 WHERE e.id = $1
     	 GROUP BY e.id`,
		eventID,
	).Scan(&st.Attendees, &st.Revenue)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &st, nil
}

// --- Store-level read wrappers used by the services ---

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	return s.Query().GetEvent(ctx, id)
}

func (s *Store) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	return s.Query().ListEvents(ctx, limit, offset)
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.Query().GetBooking(ctx, id)
}

func (s *Store) ListBookings(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error) {
	return s.Query().ListBookings(ctx, eventID)
}

func (s *Store) OrganizerStats(ctx context.Context, organizerID uuid.UUID) (*domain.OrganizerStats, error) {
	return s.Query().OrganizerStats(ctx, organizerID)
}

func (s *Store) EventStats(ctx context.Context, eventID uuid.UUID) (*domain.EventStats, error) {
	return s.Query().EventStats(ctx, eventID)
}
