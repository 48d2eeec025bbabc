package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/checkout"
	"github.com/ktsaryk/eventhub/internal/clock"
	"github.com/ktsaryk/eventhub/internal/domain"
	redisx "github.com/ktsaryk/eventhub/internal/redis"
	"github.com/ktsaryk/eventhub/internal/repository"
	redisrepo "github.com/ktsaryk/eventhub/internal/repository/redis"
)

// Outcome is the result reported by the payment provider callback.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Ledger is the slice of the ledger store the state machine drives.
type Ledger interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ApplyPaymentResult(ctx context.Context, id uuid.UUID, success bool, externalRef string, now time.Time) (*domain.Booking, error)
	ConfirmFreeBooking(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Booking, error)
	RefundBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
}

type Config struct {
	SuccessURL string
	CancelURL  string
}

type Service struct {
	ledger   Ledger
	provider checkout.Provider
	cache    *redisrepo.Cache
	pubsub   *redisx.BookingsPubSub
	clock    clock.Clock
	cfg      Config
}

func New(
	ledger Ledger,
	provider checkout.Provider,
	cache *redisrepo.Cache,
	pubsub *redisx.BookingsPubSub,
	clk clock.Clock,
	cfg Config,
) *Service {
	return &Service{
		ledger:   ledger,
		provider: provider,
		cache:    cache,
		pubsub:   pubsub,
		clock:    clk,
		cfg:      cfg,
	}
}

// CreateCheckout asks the provider for a hosted checkout session for a
// pending priced booking and returns the redirect URL.
//
// The reservation already holds the capacity; a provider failure here leaves
// the booking pending for the reclaimer, it never unwinds the admission.
//
// Returns:
//   - error: payment.ErrInconsistentTransition if the booking is not pending
//     or has nothing to pay.
func (s *Service) CreateCheckout(ctx context.Context, b *domain.Booking) (string, error) {
	const op = "service.payment.CreateCheckout"

	if b.PaymentStatus != domain.PaymentPending || b.TotalPrice <= 0 {
		return "", fmt.Errorf("%s:%w", op, ErrInconsistentTransition)
	}

	if s.provider == nil {
		return "", fmt.Errorf("%s: no checkout provider configured", op)
	}

	url, err := s.provider.CreateSession(ctx, checkout.SessionParams{
		BookingID:       b.ID,
		TotalPrice:      b.TotalPrice,
		SuccessRedirect: s.cfg.SuccessURL,
		CancelRedirect:  s.cfg.CancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return url, nil
}

// ApplyResult drives a pending booking to paid or failed from the provider
// callback.
//
// Safe to receive more than once: a replay with the reference already
// recorded returns the stored booking unchanged, so the ticket code is minted
// exactly once and revenue is counted exactly once.
//
// Parameters:
//   - bookingID: booking the callback refers to.
//   - outcome: payment.OutcomeSuccess or payment.OutcomeFailure.
//   - externalRef: the provider's reference for this payment event.
//
// Returns:
//   - *domain.Booking: the booking after the transition.
//   - error: payment.ErrMissingReference if externalRef is empty.
//   - error: payment.ErrBookingNotFound if the booking does not exist.
//   - error: payment.ErrStaleCallback on a settled booking with a different
//     reference.
func (s *Service) ApplyResult(
	ctx context.Context,
	bookingID uuid.UUID,
	outcome Outcome,
	externalRef string,
) (*domain.Booking, error) {
	const op = "service.payment.ApplyResult"

	if externalRef == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrMissingReference)
	}

	b, err := s.ledger.ApplyPaymentResult(ctx, bookingID, outcome == OutcomeSuccess, externalRef, s.clock.Now())
	if err != nil {
		return nil, s.translate(op, err)
	}

	s.invalidate(ctx, b.EventID)

	return b, nil
}

// ConfirmFree confirms a pending zero-priced booking and issues its ticket
// code. Confirming an already paid free booking returns the stored code.
//
// Returns:
//   - error: payment.ErrBookingNotFound if the booking does not exist.
//   - error: payment.ErrInconsistentTransition if the booking is priced or
//     already settled differently.
func (s *Service) ConfirmFree(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	const op = "service.payment.ConfirmFree"

	b, err := s.ledger.ConfirmFreeBooking(ctx, bookingID, s.clock.Now())
	if err != nil {
		return nil, s.translate(op, err)
	}

	s.invalidate(ctx, b.EventID)

	return b, nil
}

// Refund moves a paid booking to refunded, releasing its capacity and
// removing it from revenue and attendance totals.
//
// Returns:
//   - error: payment.ErrBookingNotFound if the booking does not exist.
//   - error: payment.ErrInconsistentTransition if the booking is not paid.
func (s *Service) Refund(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	const op = "service.payment.Refund"

	b, err := s.ledger.RefundBooking(ctx, bookingID)
	if err != nil {
		return nil, s.translate(op, err)
	}

	s.invalidate(ctx, b.EventID)

	return b, nil
}

func (s *Service) translate(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s:%w", op, ErrBookingNotFound)
	case errors.Is(err, repository.ErrStaleCallback):
		return fmt.Errorf("%s:%w", op, ErrStaleCallback)
	case errors.Is(err, repository.ErrInvalidTransition):
		return fmt.Errorf("%s:%w", op, ErrInconsistentTransition)
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%s:%w", op, ErrUnavailable)
	}

	return fmt.Errorf("%s:%w", op, err)
}

func (s *Service) invalidate(ctx context.Context, eventID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishBookingChanged(ctx, eventID)
	}
}
