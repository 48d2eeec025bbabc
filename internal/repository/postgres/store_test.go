package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/domain"
	"github.com/ktsaryk/eventhub/internal/repository"
	postgres "github.com/ktsaryk/eventhub/internal/repository/postgres"
	"github.com/ktsaryk/eventhub/internal/testutil"
)

// Integration tests against a real Postgres; skipped when no database is
// reachable (set TEST_DATABASE_URL to override the default DSN).

func setupStore(t *testing.T) (*postgres.Store, context.Context) {
	t.Helper()
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)
	return postgres.NewStore(pool), ctx
}

func seedEvent(t *testing.T, ctx context.Context, store *postgres.Store, capacity int, price float64) uuid.UUID {
	t.Helper()
	id, err := store.CreateEvent(ctx, domain.Event{
		OrganizerID: uuid.New(),
		Title:       "Go Conf",
		Starts:      time.Now().Add(24 * time.Hour),
		Price:       price,
		Capacity:    capacity,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return id
}

func TestStoreReserve(t *testing.T) {
	store, ctx := setupStore(t)

	t.Run("admits up to capacity", func(t *testing.T) {
		eventID := seedEvent(t, ctx, store, 3, 20)

		b, err := store.ReserveBooking(ctx, eventID, uuid.New(), 2, time.Now())
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if b.PaymentStatus != domain.PaymentPending {
			t.Fatalf("status = %s, want pending", b.PaymentStatus)
		}
		if b.TotalPrice != 40 {
			t.Fatalf("total = %v, want 40", b.TotalPrice)
		}

		if _, err := store.ReserveBooking(ctx, eventID, uuid.New(), 2, time.Now()); !errors.Is(err, repository.ErrCapacityExceeded) {
			t.Fatalf("want ErrCapacityExceeded, got %v", err)
		}

		if _, err := store.ReserveBooking(ctx, eventID, uuid.New(), 1, time.Now()); err != nil {
			t.Fatalf("reserve last seat: %v", err)
		}
	})

	t.Run("free event pays immediately", func(t *testing.T) {
		eventID := seedEvent(t, ctx, store, 5, 0)

		b, err := store.ReserveBooking(ctx, eventID, uuid.New(), 1, time.Now())
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if b.PaymentStatus != domain.PaymentPaid || b.TicketCode == "" {
			t.Fatalf("booking = %+v", b)
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := store.ReserveBooking(ctx, uuid.New(), uuid.New(), 1, time.Now())
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("started event", func(t *testing.T) {
		eventID := seedEvent(t, ctx, store, 5, 0)

		_, err := store.ReserveBooking(ctx, eventID, uuid.New(), 1, time.Now().Add(48*time.Hour))
		if !errors.Is(err, repository.ErrEventStarted) {
			t.Fatalf("want ErrEventStarted, got %v", err)
		}
	})
}

func TestStoreReserveConcurrent(t *testing.T) {
	store, ctx := setupStore(t)

	const capacity = 10
	const attempts = 20

	eventID := seedEvent(t, ctx, store, capacity, 0)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ReserveBooking(ctx, eventID, uuid.New(), 1, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, repository.ErrCapacityExceeded):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != capacity {
		t.Fatalf("admitted %d, want %d", admitted, capacity)
	}

	st, err := store.EventStats(ctx, eventID)
	if err != nil {
		t.Fatalf("event stats: %v", err)
	}
	if st.Attendees != capacity {
		t.Fatalf("attendees = %d, want %d", st.Attendees, capacity)
	}
}

func TestStorePaymentTransitions(t *testing.T) {
	store, ctx := setupStore(t)

	eventID := seedEvent(t, ctx, store, 10, 20)

	reserve := func(t *testing.T) *domain.Booking {
		t.Helper()
		b, err := store.ReserveBooking(ctx, eventID, uuid.New(), 1, time.Now())
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		return b
	}

	t.Run("success is idempotent per reference", func(t *testing.T) {
		b := reserve(t)

		first, err := store.ApplyPaymentResult(ctx, b.ID, true, "pay_a", time.Now())
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if first.PaymentStatus != domain.PaymentPaid || first.TicketCode == "" {
			t.Fatalf("booking = %+v", first)
		}

		replay, err := store.ApplyPaymentResult(ctx, b.ID, true, "pay_a", time.Now())
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if replay.TicketCode != first.TicketCode {
			t.Fatal("replay minted a new ticket code")
		}

		if _, err := store.ApplyPaymentResult(ctx, b.ID, false, "pay_b", time.Now()); !errors.Is(err, repository.ErrStaleCallback) {
			t.Fatalf("want ErrStaleCallback, got %v", err)
		}
	})

	t.Run("failure releases capacity", func(t *testing.T) {
		b := reserve(t)

		failed, err := store.ApplyPaymentResult(ctx, b.ID, false, "pay_c", time.Now())
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if failed.PaymentStatus != domain.PaymentFailed {
			t.Fatalf("status = %s, want failed", failed.PaymentStatus)
		}
	})

	t.Run("refund", func(t *testing.T) {
		b := reserve(t)
		if _, err := store.ApplyPaymentResult(ctx, b.ID, true, "pay_d", time.Now()); err != nil {
			t.Fatalf("apply: %v", err)
		}

		refunded, err := store.RefundBooking(ctx, b.ID)
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if refunded.PaymentStatus != domain.PaymentRefunded {
			t.Fatalf("status = %s, want refunded", refunded.PaymentStatus)
		}

		// Refunding twice is an invalid transition.
		if _, err := store.RefundBooking(ctx, b.ID); !errors.Is(err, repository.ErrInvalidTransition) {
			t.Fatalf("want ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("refund of pending booking", func(t *testing.T) {
		b := reserve(t)
		if _, err := store.RefundBooking(ctx, b.ID); !errors.Is(err, repository.ErrInvalidTransition) {
			t.Fatalf("want ErrInvalidTransition, got %v", err)
		}
	})
}

func TestStoreExpirePending(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)
	store := postgres.NewStore(pool)

	eventID := testutil.InsertEvent(t, ctx, pool, domain.Event{
		OrganizerID: uuid.New(),
		Title:       "Go Conf",
		Starts:      time.Now().Add(24 * time.Hour),
		Price:       20,
		Capacity:    5,
	})

	staleID := testutil.InsertBooking(t, ctx, pool, domain.Booking{
		EventID:       eventID,
		AttendeeID:    uuid.New(),
		TicketCount:   3,
		TotalPrice:    60,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     time.Now().Add(-time.Hour),
	})

	eventIDs, err := store.ExpirePendingBookings(ctx, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(eventIDs) != 1 || eventIDs[0] != eventID {
		t.Fatalf("expired events = %v", eventIDs)
	}

	got, err := store.GetBooking(ctx, staleID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if got.PaymentStatus != domain.PaymentFailed {
		t.Fatalf("status = %s, want failed", got.PaymentStatus)
	}

	// The held capacity is back.
	if _, err := store.ReserveBooking(ctx, eventID, uuid.New(), 5, time.Now()); err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
}

func TestStoreStats(t *testing.T) {
	store, ctx := setupStore(t)

	organizerID := uuid.New()
	eventID, err := store.CreateEvent(ctx, domain.Event{
		OrganizerID: organizerID,
		Title:       "Go Conf",
		Starts:      time.Now().Add(24 * time.Hour),
		Price:       20,
		Capacity:    100,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	paid, err := store.ReserveBooking(ctx, eventID, uuid.New(), 2, time.Now())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := store.ApplyPaymentResult(ctx, paid.ID, true, "pay_1", time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// A pending booking must not show up in any totals.
	if _, err := store.ReserveBooking(ctx, eventID, uuid.New(), 5, time.Now()); err != nil {
		t.Fatalf("reserve pending: %v", err)
	}

	st, err := store.EventStats(ctx, eventID)
	if err != nil {
		t.Fatalf("event stats: %v", err)
	}
	if st.Attendees != 2 || st.Revenue != 40 {
		t.Fatalf("stats = %+v, want 2 attendees, 40 revenue", st)
	}

	org, err := store.OrganizerStats(ctx, organizerID)
	if err != nil {
		t.Fatalf("organizer stats: %v", err)
	}
	if org.TotalEvents != 1 || org.TotalTickets != 2 || org.TotalRevenue != 40 {
		t.Fatalf("organizer stats = %+v", org)
	}
}
