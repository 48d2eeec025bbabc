package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/domain"
	"github.com/ktsaryk/eventhub/internal/repository"
)

type fakeLedger struct {
	events    map[uuid.UUID]domain.Event
	bookings  []domain.Booking
	lastLimit int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{events: make(map[uuid.UUID]domain.Event)}
}

func (f *fakeLedger) GetEvent(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (f *fakeLedger) ListEvents(_ context.Context, limit, offset int) ([]domain.Event, error) {
	f.lastLimit = limit
	out := make([]domain.Event, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLedger) GetBooking(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	for i := range f.bookings {
		if f.bookings[i].ID == id {
			return &f.bookings[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeLedger) ListBookings(_ context.Context, eventID uuid.UUID) ([]domain.Booking, error) {
	if _, ok := f.events[eventID]; !ok {
		return nil, repository.ErrNotFound
	}
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeLedger) OrganizerStats(_ context.Context, organizerID uuid.UUID) (*domain.OrganizerStats, error) {
	st := &domain.OrganizerStats{}
	for id, e := range f.events {
		if e.OrganizerID != organizerID {
			continue
		}
		st.TotalEvents++
		for _, b := range f.bookings {
			if b.EventID == id && b.PaymentStatus == domain.PaymentPaid {
				st.TotalTickets += int64(b.TicketCount)
				st.TotalRevenue += b.TotalPrice
			}
		}
	}
	return st, nil
}

func (f *fakeLedger) EventStats(_ context.Context, eventID uuid.UUID) (*domain.EventStats, error) {
	if _, ok := f.events[eventID]; !ok {
		return nil, repository.ErrNotFound
	}
	st := &domain.EventStats{}
	for _, b := range f.bookings {
		if b.EventID == eventID && b.PaymentStatus == domain.PaymentPaid {
			st.Attendees += int64(b.TicketCount)
			st.Revenue += b.TotalPrice
		}
	}
	return st, nil
}

func seedEvent(f *fakeLedger, organizerID uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.events[id] = domain.Event{
		ID:          id,
		OrganizerID: organizerID,
		Title:       "Go Conf",
		Starts:      time.Date(2026, time.June, 1, 18, 0, 0, 0, time.UTC),
		Price:       20,
		Capacity:    100,
	}
	return id
}

func TestGetEvent(t *testing.T) {
	ledger := newFakeLedger()
	svc := New(ledger, nil, Config{})
	ctx := context.Background()

	eventID := seedEvent(ledger, uuid.New())

	e, err := svc.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if e.ID != eventID {
		t.Fatalf("got event %s", e.ID)
	}

	if _, err := svc.GetEvent(ctx, uuid.New()); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("want ErrEventNotFound, got %v", err)
	}
}

func TestListEventsClampsPagination(t *testing.T) {
	ledger := newFakeLedger()
	svc := New(ledger, nil, Config{DefaultEventsPage: 50, MaxEventsPage: 200})
	ctx := context.Background()

	if _, err := svc.ListEvents(ctx, 0, 0); err != nil {
		t.Fatalf("list: %v", err)
	}
	if ledger.lastLimit != 50 {
		t.Fatalf("limit = %d, want default 50", ledger.lastLimit)
	}

	if _, err := svc.ListEvents(ctx, 10000, 0); err != nil {
		t.Fatalf("list: %v", err)
	}
	if ledger.lastLimit != 200 {
		t.Fatalf("limit = %d, want clamped 200", ledger.lastLimit)
	}
}

func TestEventStatsCountsOnlyPaid(t *testing.T) {
	ledger := newFakeLedger()
	svc := New(ledger, nil, Config{})
	ctx := context.Background()

	eventID := seedEvent(ledger, uuid.New())

	add := func(status domain.PaymentStatus, count int, total float64) {
		ledger.bookings = append(ledger.bookings, domain.Booking{
			ID:            uuid.New(),
			EventID:       eventID,
			AttendeeID:    uuid.New(),
			TicketCount:   count,
			TotalPrice:    total,
			PaymentStatus: status,
		})
	}

	add(domain.PaymentPaid, 2, 40)
	add(domain.PaymentPaid, 1, 20)
	add(domain.PaymentPending, 5, 100)
	add(domain.PaymentFailed, 3, 60)
	add(domain.PaymentRefunded, 4, 80)

	st, err := svc.EventStats(ctx, eventID)
	if err != nil {
		t.Fatalf("event stats: %v", err)
	}
	if st.Attendees != 3 {
		t.Fatalf("attendees = %d, want 3", st.Attendees)
	}
	if st.Revenue != 60 {
		t.Fatalf("revenue = %v, want 60", st.Revenue)
	}

	if _, err := svc.EventStats(ctx, uuid.New()); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("want ErrEventNotFound, got %v", err)
	}
}

func TestOrganizerStats(t *testing.T) {
	ledger := newFakeLedger()
	svc := New(ledger, nil, Config{})
	ctx := context.Background()

	organizerID := uuid.New()
	first := seedEvent(ledger, organizerID)
	second := seedEvent(ledger, organizerID)
	other := seedEvent(ledger, uuid.New())

	ledger.bookings = append(ledger.bookings,
		domain.Booking{ID: uuid.New(), EventID: first, TicketCount: 2, TotalPrice: 40, PaymentStatus: domain.PaymentPaid},
		domain.Booking{ID: uuid.New(), EventID: second, TicketCount: 1, TotalPrice: 20, PaymentStatus: domain.PaymentPaid},
		domain.Booking{ID: uuid.New(), EventID: second, TicketCount: 9, TotalPrice: 180, PaymentStatus: domain.PaymentPending},
		domain.Booking{ID: uuid.New(), EventID: other, TicketCount: 7, TotalPrice: 140, PaymentStatus: domain.PaymentPaid},
	)

	st, err := svc.OrganizerStats(ctx, organizerID)
	if err != nil {
		t.Fatalf("organizer stats: %v", err)
	}
	if st.TotalEvents != 2 || st.TotalTickets != 3 || st.TotalRevenue != 60 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestGetBooking(t *testing.T) {
	ledger := newFakeLedger()
	svc := New(ledger, nil, Config{})
	ctx := context.Background()

	eventID := seedEvent(ledger, uuid.New())
	b := domain.Booking{
		ID:            uuid.New(),
		EventID:       eventID,
		AttendeeID:    uuid.New(),
		TicketCount:   1,
		TotalPrice:    20,
		PaymentStatus: domain.PaymentPending,
	}
	ledger.bookings = append(ledger.bookings, b)

	got, err := svc.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if got.ID != b.ID {
		t.Fatalf("got %s", got.ID)
	}

	if _, err := svc.GetBooking(ctx, uuid.New()); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("want ErrBookingNotFound, got %v", err)
	}
}
