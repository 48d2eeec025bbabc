package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/clock"
	"github.com/ktsaryk/eventhub/internal/domain"
	redisx "github.com/ktsaryk/eventhub/internal/redis"
	"github.com/ktsaryk/eventhub/internal/repository"
	redisrepo "github.com/ktsaryk/eventhub/internal/repository/redis"
)

// Ledger is the slice of the ledger store the admission controller needs.
type Ledger interface {
	ReserveBooking(ctx context.Context, eventID, attendeeID uuid.UUID, ticketCount int, now time.Time) (*domain.Booking, error)
	ExpirePendingBookings(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type Config struct {
	// PendingTTL bounds how long a pending booking may hold capacity before
	// the reclaimer fails it.
	PendingTTL time.Duration
}

type Service struct {
	ledger  Ledger
	cache   *redisrepo.Cache
	pubsub  *redisx.BookingsPubSub
	limiter *redisrepo.SlidingWindowLimiter
	clock   clock.Clock
	cfg     Config
}

func New(
	ledger Ledger,
	cache *redisrepo.Cache,
	pubsub *redisx.BookingsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	clk clock.Clock,
	cfg Config,
) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 30 * time.Minute
	}

	return &Service{
		ledger:  ledger,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		clock:   clk,
		cfg:     cfg,
	}
}

// Reserve admits one booking request against the event's capacity.
//
// The check and the insert happen as one atomic ledger operation, so two
// concurrent calls can never both consume the last remaining tickets. On a
// free event the booking comes back paid with its ticket code already minted.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: event to book against.
//   - attendeeID: verified caller identity, resolved upstream.
//   - ticketCount: number of tickets requested.
//   - rlKey: rate-limit bucket, usually the client IP; empty disables limiting.
//
// Returns:
//   - *domain.Booking: the created booking.
//   - error: booking.ErrInvalidQuantity if ticketCount < 1.
//   - error: booking.ErrEventNotFound if the event does not exist.
//   - error: booking.ErrEventStarted if the event is not in the future.
//   - error: booking.ErrCapacityExceeded if the request overshoots capacity.
//   - error: booking.ErrRateLimited if the caller is over the request budget.
func (s *Service) Reserve(
	ctx context.Context,
	eventID, attendeeID uuid.UUID,
	ticketCount int,
	rlKey string,
) (*domain.Booking, error) {
	const op = "service.booking.Reserve"

	if ticketCount < 1 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidQuantity)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s:%w: retry in %s", op, ErrRateLimited, retry)
		}
	}

	b, err := s.ledger.ReserveBooking(ctx, eventID, attendeeID, ticketCount, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		case errors.Is(err, repository.ErrEventStarted):
			return nil, fmt.Errorf("%s:%w", op, ErrEventStarted)
		case errors.Is(err, repository.ErrCapacityExceeded):
			return nil, fmt.Errorf("%s:%w", op, ErrCapacityExceeded)
		case errors.Is(err, repository.ErrUnavailable):
			return nil, fmt.Errorf("%s:%w", op, ErrUnavailable)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, b.EventID)

	return b, nil
}

// Expire fails pending bookings older than the configured TTL, releasing
// their held capacity. Called by the background reclaimer.
//
// Returns:
//   - int64: the number of bookings expired.
func (s *Service) Expire(ctx context.Context) (int64, error) {
	const op = "service.booking.Expire"

	cutoff := s.clock.Now().Add(-s.cfg.PendingTTL)

	eventIDs, err := s.ledger.ExpirePendingBookings(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	seen := make(map[uuid.UUID]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.invalidate(ctx, id)
	}

	return int64(len(eventIDs)), nil
}

func (s *Service) invalidate(ctx context.Context, eventID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.InvalidateEvent(ctx, eventID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishBookingChanged(ctx, eventID)
	}
}
