package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ktsaryk/eventhub/internal/domain"
	"github.com/ktsaryk/eventhub/internal/repository"
	"github.com/ktsaryk/eventhub/internal/ticket"
)

// BookingRepo owns all writes to the bookings ledger. The mutating methods
// must run inside a transaction (bind one with With); Store exposes
// ready-made transactional wrappers below.
type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Reserve performs the atomic check-and-reserve for one booking request.
//
// The event row is locked for the duration of the transaction, so for a given
// event all admission decisions are serialized: the reserved sum read here
// cannot be invalidated by a concurrent insert before this one commits.
//
// Returns:
//   - *domain.Booking: the created booking; paid with a ticket code when the
//     event is free, pending otherwise.
//   - error: repository.ErrNotFound if the event does not exist.
//   - error: repository.ErrEventStarted if the event is not in the future.
//   - error: repository.ErrCapacityExceeded if the request overshoots capacity.
func (r *BookingRepo) Reserve(
	ctx context.Context,
	eventID, attendeeID uuid.UUID,
	ticketCount int,
	now time.Time,
) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Reserve"

	db := r.handle()

	var price float64
	var capacity int
	var starts time.Time

	err := db.QueryRow(ctx,
		`SELECT price, capacity, starts_at
       	 FROM events WHERE id = $1
     	 FOR UPDATE`,
		eventID,
	).Scan(&price, &capacity, &starts)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if !starts.After(now) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrEventStarted)
	}

	// Pending bookings count against capacity so a checkout in flight cannot
	// be double-sold; the reclaimer releases the ones that never complete.
	var reserved int
	err = db.QueryRow(ctx,
		`SELECT COALESCE(SUM(ticket_count), 0)
       	 FROM bookings
      	 WHERE event_id = $1 AND payment_status IN ('pending', 'paid')`,
		eventID,
	).Scan(&reserved)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if reserved+ticketCount > capacity {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrCapacityExceeded)
	}

	b := domain.Booking{
		ID:            uuid.New(),
		EventID:       eventID,
		AttendeeID:    attendeeID,
		TicketCount:   ticketCount,
		TotalPrice:    price * float64(ticketCount),
		PaymentStatus: domain.PaymentPending,
	}

	// Free events are confirmed atomically with the reservation.
	if price == 0 {
		b.PaymentStatus = domain.PaymentPaid
		b.TicketCode = ticket.Issue(eventID, attendeeID, b.ID, now)
	}

	err = db.QueryRow(ctx,
		`INSERT INTO bookings(id, event_id, attendee_id, ticket_count, total_price, payment_status, ticket_code)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7)
     	 RETURNING created_at`,
		b.ID, b.EventID, b.AttendeeID, b.TicketCount, b.TotalPrice, b.PaymentStatus, nullIfEmpty(b.TicketCode),
	).Scan(&b.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &b, nil
}

// ApplyResult applies an external payment outcome to a pending booking.
//
// Replays are safe: a terminal booking with a matching reference is returned
// unchanged, a terminal booking with a different reference is a stale
// callback.
//
// Returns:
//   - *domain.Booking: the booking after the transition (or as stored, on a
//     matching replay).
//   - error: repository.ErrNotFound if the booking does not exist.
//   - error: repository.ErrStaleCallback on a terminal booking with a
//     mismatched reference.
func (r *BookingRepo) ApplyResult(
	ctx context.Context,
	bookingID uuid.UUID,
	success bool,
	externalRef string,
	now time.Time,
) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.ApplyResult"

	db := r.handle()

	b, err := r.getForUpdate(ctx, db, bookingID)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if b.PaymentStatus.Terminal() {
		if b.PaymentRef == externalRef {
			return b, nil
		}
		return nil, fmt.Errorf("%s:%w", op, repository.ErrStaleCallback)
	}

	to := domain.PaymentFailed
	code := b.TicketCode
	if success {
		to = domain.PaymentPaid
		code = ticket.Issue(b.EventID, b.AttendeeID, b.ID, now)
	}

	if !b.PaymentStatus.CanTransition(to) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrInvalidTransition)
	}

	if _, err := db.Exec(ctx,
		`UPDATE bookings
        	SET payment_status = $2, payment_ref = $3, ticket_code = COALESCE(ticket_code, $4)
      	 WHERE id = $1`,
		b.ID, to, externalRef, nullIfEmpty(code),
	); err != nil {
		return nil, wrapDBErr(op, err)
	}

	b.PaymentStatus = to
	b.PaymentRef = externalRef
	b.TicketCode = code

	return b, nil
}

// ConfirmFree confirms a pending zero-priced booking. A free booking already
// paid is returned as is so that the stored ticket code is never reminted.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
//   - error: repository.ErrInvalidTransition if the booking is priced or not
//     pending.
func (r *BookingRepo) ConfirmFree(
	ctx context.Context,
	bookingID uuid.UUID,
	now time.Time,
) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.ConfirmFree"

	db := r.handle()

	b, err := r.getForUpdate(ctx, db, bookingID)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if b.TotalPrice == 0 && b.PaymentStatus == domain.PaymentPaid {
		return b, nil
	}

	if b.TotalPrice != 0 || b.PaymentStatus != domain.PaymentPending {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrInvalidTransition)
	}

	code := ticket.Issue(b.EventID, b.AttendeeID, b.ID, now)

	if _, err := db.Exec(ctx,
		`UPDATE bookings
        	SET payment_status = $2, ticket_code = $3
      	 WHERE id = $1`,
		b.ID, domain.PaymentPaid, code,
	); err != nil {
		return nil, wrapDBErr(op, err)
	}

	b.PaymentStatus = domain.PaymentPaid
	b.TicketCode = code

	return b, nil
}

// Refund moves a paid booking to refunded, releasing its reserved capacity.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
//   - error: repository.ErrInvalidTransition if the booking is not paid.
func (r *BookingRepo) Refund(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Refund"

	db := r.handle()

	b, err := r.getForUpdate(ctx, db, bookingID)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if !b.PaymentStatus.CanTransition(domain.PaymentRefunded) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrInvalidTransition)
	}

	if _, err := db.Exec(ctx,
		`UPDATE bookings SET payment_status = $2 WHERE id = $1`,
		b.ID, domain.PaymentRefunded,
	); err != nil {
		return nil, wrapDBErr(op, err)
	}

	b.PaymentStatus = domain.PaymentRefunded

	return b, nil
}

// ExpirePending fails pending bookings created at or before the cutoff and
// returns the event IDs whose capacity was released, one entry per booking.
func (r *BookingRepo) ExpirePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	const op = "postgres.BookingRepo.ExpirePending"

	db := r.handle()

	rows, err := db.Query(ctx,
		`UPDATE bookings
        	SET payment_status = 'failed'
      	 WHERE payment_status = 'pending' AND created_at <= $1
      	 RETURNING event_id`,
		cutoff,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var eventIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		eventIDs = append(eventIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return eventIDs, nil
}

func (r *BookingRepo) getForUpdate(ctx context.Context, db DB, id uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	var ref, code *string

	err := db.QueryRow(ctx,
		`SELECT id, event_id, attendee_id, ticket_count, total_price, payment_status, payment_ref, ticket_code, created_at
       	 FROM bookings WHERE id = $1
     	 FOR UPDATE`,
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
		return nil, err
	}

	if ref != nil {
		b.PaymentRef = *ref
	}
	if code != nil {
		b.TicketCode = *code
	}

	return &b, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// --- transactional wrappers used by the services ---

// ReserveBooking runs the admission check-and-reserve in its own serializable
// transaction.
func (s *Store) ReserveBooking(
	ctx context.Context,
	eventID, attendeeID uuid.UUID,
	ticketCount int,
	now time.Time,
) (*domain.Booking, error) {
	var b *domain.Booking

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var err error
		b, err = s.Bookings().With(tx).Reserve(ctx, eventID, attendeeID, ticketCount, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// ApplyPaymentResult runs the webhook transition in its own transaction.
func (s *Store) ApplyPaymentResult(
	ctx context.Context,
	bookingID uuid.UUID,
	success bool,
	externalRef string,
	now time.Time,
) (*domain.Booking, error) {
	var b *domain.Booking

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var err error
		b, err = s.Bookings().With(tx).ApplyResult(ctx, bookingID, success, externalRef, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// ConfirmFreeBooking runs the free-event confirmation in its own transaction.
func (s *Store) ConfirmFreeBooking(
	ctx context.Context,
	bookingID uuid.UUID,
	now time.Time,
) (*domain.Booking, error) {
	var b *domain.Booking

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var err error
		b, err = s.Bookings().With(tx).ConfirmFree(ctx, bookingID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// RefundBooking runs the refund transition in its own transaction.
func (s *Store) RefundBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	var b *domain.Booking

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var err error
		b, err = s.Bookings().With(tx).Refund(ctx, bookingID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// ExpirePendingBookings fails abandoned pending bookings in a single
// statement; no surrounding transaction is needed.
func (s *Store) ExpirePendingBookings(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	return s.Bookings().ExpirePending(ctx, cutoff)
}
