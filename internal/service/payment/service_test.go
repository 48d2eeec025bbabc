package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/checkout"
	"github.com/ktsaryk/eventhub/internal/clock"
	"github.com/ktsaryk/eventhub/internal/domain"
	"github.com/ktsaryk/eventhub/internal/repository"
	"github.com/ktsaryk/eventhub/internal/ticket"
)

var testNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

type fakeLedger struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*domain.Booking
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bookings: make(map[uuid.UUID]*domain.Booking)}
}

func (f *fakeLedger) addBooking(b domain.Booking) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.EventID == uuid.Nil {
		b.EventID = uuid.New()
	}
	if b.AttendeeID == uuid.Nil {
		b.AttendeeID = uuid.New()
	}
	cp := b
	f.bookings[b.ID] = &cp
	return b.ID
}

func (f *fakeLedger) GetBooking(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeLedger) ApplyPaymentResult(
	_ context.Context,
	id uuid.UUID,
	success bool,
	externalRef string,
	now time.Time,
) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.PaymentStatus.Terminal() {
		if b.PaymentRef == externalRef {
			cp := *b
			return &cp, nil
		}
		return nil, repository.ErrStaleCallback
	}

	b.PaymentRef = externalRef
	if success {
		b.PaymentStatus = domain.PaymentPaid
		if b.TicketCode == "" {
			b.TicketCode = ticket.Issue(b.EventID, b.AttendeeID, b.ID, now)
		}
	} else {
		b.PaymentStatus = domain.PaymentFailed
	}

	cp := *b
	return &cp, nil
}

func (f *fakeLedger) ConfirmFreeBooking(_ context.Context, id uuid.UUID, now time.Time) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.PaymentStatus == domain.PaymentPaid && b.TotalPrice == 0 {
		cp := *b
		return &cp, nil
	}
	if b.PaymentStatus != domain.PaymentPending || b.TotalPrice != 0 {
		return nil, repository.ErrInvalidTransition
	}

	b.PaymentStatus = domain.PaymentPaid
	b.TicketCode = ticket.Issue(b.EventID, b.AttendeeID, b.ID, now)

	cp := *b
	return &cp, nil
}

func (f *fakeLedger) RefundBooking(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !b.PaymentStatus.CanTransition(domain.PaymentRefunded) {
		return nil, repository.ErrInvalidTransition
	}
	b.PaymentStatus = domain.PaymentRefunded

	cp := *b
	return &cp, nil
}

type stubProvider struct {
	url  string
	err  error
	last checkout.SessionParams
}

func (p *stubProvider) CreateSession(_ context.Context, params checkout.SessionParams) (string, error) {
	p.last = params
	return p.url, p.err
}

func newTestService(ledger *fakeLedger, provider checkout.Provider) *Service {
	return New(ledger, provider, nil, nil, clock.NewFixed(testNow), Config{
		SuccessURL: "https://example.com/ok",
		CancelURL:  "https://example.com/cancel",
	})
}

func pendingBooking(total float64) domain.Booking {
	return domain.Booking{
		TicketCount:   2,
		TotalPrice:    total,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     testNow,
	}
}

func TestApplyResult(t *testing.T) {
	ctx := context.Background()

	t.Run("missing reference", func(t *testing.T) {
		svc := newTestService(newFakeLedger(), nil)
		_, err := svc.ApplyResult(ctx, uuid.New(), OutcomeSuccess, "")
		if !errors.Is(err, ErrMissingReference) {
			t.Fatalf("want ErrMissingReference, got %v", err)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		svc := newTestService(newFakeLedger(), nil)
		_, err := svc.ApplyResult(ctx, uuid.New(), OutcomeSuccess, "pay_1")
		if !errors.Is(err, ErrBookingNotFound) {
			t.Fatalf("want ErrBookingNotFound, got %v", err)
		}
	})

	t.Run("success mints ticket code", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := newTestService(ledger, nil)
		id := ledger.addBooking(pendingBooking(40))

		b, err := svc.ApplyResult(ctx, id, OutcomeSuccess, "pay_1")
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if b.PaymentStatus != domain.PaymentPaid {
			t.Fatalf("status = %s, want paid", b.PaymentStatus)
		}
		if b.TicketCode == "" {
			t.Fatal("expected ticket code")
		}
	})

	t.Run("failure leaves no ticket code", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := newTestService(ledger, nil)
		id := ledger.addBooking(pendingBooking(40))

		b, err := svc.ApplyResult(ctx, id, OutcomeFailure, "pay_1")
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if b.PaymentStatus != domain.PaymentFailed {
			t.Fatalf("status = %s, want failed", b.PaymentStatus)
		}
		if b.TicketCode != "" {
			t.Fatal("failed booking must not carry a ticket code")
		}
	})

	t.Run("replay with same reference is a no-op", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := newTestService(ledger, nil)
		id := ledger.addBooking(pendingBooking(40))

		first, err := svc.ApplyResult(ctx, id, OutcomeSuccess, "pay_1")
		if err != nil {
			t.Fatalf("first apply: %v", err)
		}
		replay, err := svc.ApplyResult(ctx, id, OutcomeSuccess, "pay_1")
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if replay.TicketCode != first.TicketCode {
			t.Fatalf("replay minted a new code: %q vs %q", replay.TicketCode, first.TicketCode)
		}
		if replay.PaymentStatus != domain.PaymentPaid {
			t.Fatalf("status = %s, want paid", replay.PaymentStatus)
		}
	})

	t.Run("settled booking rejects a different reference", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := newTestService(ledger, nil)
		id := ledger.addBooking(pendingBooking(40))

		if _, err := svc.ApplyResult(ctx, id, OutcomeFailure, "pay_1"); err != nil {
			t.Fatalf("first apply: %v", err)
		}
		_, err := svc.ApplyResult(ctx, id, OutcomeSuccess, "pay_2")
		if !errors.Is(err, ErrStaleCallback) {
			t.Fatalf("want ErrStaleCallback, got %v", err)
		}
	})
}

func TestConfirmFree(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms a pending free booking", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := newTestService(ledger, nil)
		id := ledger.addBooking(pendingBooking(0))

		b, err := svc.ConfirmFree(ctx, id)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if b.PaymentStatus != domain.PaymentPaid || b.TicketCode == "" {
			t.Fatalf("booking = %+v", b)
		}

		// Confirming again returns the stored code.
		again, err := svc.ConfirmFree(ctx, id)
		if err != nil {
			t.Fatalf("confirm again: %v", err)
		}
		if again.TicketCode != b.TicketCode {
			t.Fatalf("second confirm changed the code")
		}
	})

	t.Run("rejects a priced booking", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := newTestService(ledger, nil)
		id := ledger.addBooking(pendingBooking(40))

		_, err := svc.ConfirmFree(ctx, id)
		if !errors.Is(err, ErrInconsistentTransition) {
			t.Fatalf("want ErrInconsistentTransition, got %v", err)
		}
	})
}

func TestRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("refunds a paid booking", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := newTestService(ledger, nil)
		b := pendingBooking(40)
		b.PaymentStatus = domain.PaymentPaid
		b.PaymentRef = "pay_1"
		id := ledger.addBooking(b)

		out, err := svc.Refund(ctx, id)
		if err != nil {
			t.Fatalf("refund: %v", err)
		}
		if out.PaymentStatus != domain.PaymentRefunded {
			t.Fatalf("status = %s, want refunded", out.PaymentStatus)
		}
	})

	t.Run("rejects refund of a pending booking", func(t *testing.T) {
		ledger := newFakeLedger()
		svc := newTestService(ledger, nil)
		id := ledger.addBooking(pendingBooking(40))

		_, err := svc.Refund(ctx, id)
		if !errors.Is(err, ErrInconsistentTransition) {
			t.Fatalf("want ErrInconsistentTransition, got %v", err)
		}
	})

	t.Run("unknown booking", func(t *testing.T) {
		svc := newTestService(newFakeLedger(), nil)
		_, err := svc.Refund(ctx, uuid.New())
		if !errors.Is(err, ErrBookingNotFound) {
			t.Fatalf("want ErrBookingNotFound, got %v", err)
		}
	})
}

func TestCreateCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the provider redirect", func(t *testing.T) {
		ledger := newFakeLedger()
		provider := &stubProvider{url: "https://pay.example.com/s/abc"}
		svc := newTestService(ledger, provider)

		b := pendingBooking(40)
		b.ID = ledger.addBooking(b)

		url, err := svc.CreateCheckout(ctx, &b)
		if err != nil {
			t.Fatalf("create checkout: %v", err)
		}
		if url != provider.url {
			t.Fatalf("url = %q", url)
		}
		if provider.last.BookingID != b.ID || provider.last.TotalPrice != 40 {
			t.Fatalf("session params = %+v", provider.last)
		}
	})

	t.Run("rejects a settled booking", func(t *testing.T) {
		svc := newTestService(newFakeLedger(), &stubProvider{url: "x"})
		b := pendingBooking(40)
		b.PaymentStatus = domain.PaymentPaid

		_, err := svc.CreateCheckout(ctx, &b)
		if !errors.Is(err, ErrInconsistentTransition) {
			t.Fatalf("want ErrInconsistentTransition, got %v", err)
		}
	})

	t.Run("rejects a free booking", func(t *testing.T) {
		svc := newTestService(newFakeLedger(), &stubProvider{url: "x"})
		b := pendingBooking(0)

		_, err := svc.CreateCheckout(ctx, &b)
		if !errors.Is(err, ErrInconsistentTransition) {
			t.Fatalf("want ErrInconsistentTransition, got %v", err)
		}
	})
}
