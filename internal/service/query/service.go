package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/domain"
	redisx "github.com/ktsaryk/eventhub/internal/redis"
	"github.com/ktsaryk/eventhub/internal/repository"
	redisrepo "github.com/ktsaryk/eventhub/internal/repository/redis"
)

// Ledger is the read-only slice of the ledger store the aggregator scans.
type Ledger interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ListBookings(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error)
	OrganizerStats(ctx context.Context, organizerID uuid.UUID) (*domain.OrganizerStats, error)
	EventStats(ctx context.Context, eventID uuid.UUID) (*domain.EventStats, error)
}

type Config struct {
	EventSummaryTTL   time.Duration
	StatsTTL          time.Duration
	DefaultEventsPage int
	MaxEventsPage     int
}

// Service serves derived reads. Stats never gate admission decisions, so a
// short cache window is fine.
type Service struct {
	ledger Ledger
	cache  *redisrepo.Cache
	cfg    Config
}

func New(ledger Ledger, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 60 * time.Second
	}

	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = 15 * time.Second
	}

	if cfg.DefaultEventsPage <= 0 {
		cfg.DefaultEventsPage = 50
	}

	if cfg.MaxEventsPage <= 0 {
		cfg.MaxEventsPage = 200
	}

	return &Service{
		ledger: ledger,
		cache:  cache,
		cfg:    cfg,
	}
}

// GetEvent retrieves an event by its ID through the cache layer.
//
// Returns:
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	event, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyEventSummary(id),
		s.cfg.EventSummaryTTL,
		func(ctx context.Context) (domain.Event, error) {
			e, err := s.ledger.GetEvent(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Event{}, ErrEventNotFound
				}

				return domain.Event{}, err
			}

			return *e, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &event, nil
}

// ListEvents lists events ordered by start time with pagination bounds
// enforced.
func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "service.query.ListEvents"

	if limit <= 0 {
		limit = s.cfg.DefaultEventsPage
	}

	if limit > s.cfg.MaxEventsPage {
		limit = s.cfg.MaxEventsPage
	}

	events, err := s.ledger.ListEvents(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}

// GetBooking retrieves one booking by its ID.
//
// Returns:
//   - error: query.ErrBookingNotFound if the booking is not found.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.query.GetBooking"

	b, err := s.ledger.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

// ListBookings lists all bookings of an event for organizer dashboards.
//
// Returns:
//   - error: query.ErrEventNotFound if the event does not exist.
func (s *Service) ListBookings(ctx context.Context, eventID uuid.UUID) ([]domain.Booking, error) {
	const op = "service.query.ListBookings"

	bookings, err := s.ledger.ListBookings(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bookings, nil
}

// OrganizerStats aggregates ticket and revenue totals over paid bookings of
// the organizer's events. Pending, failed and refunded bookings never count.
func (s *Service) OrganizerStats(ctx context.Context, organizerID uuid.UUID) (*domain.OrganizerStats, error) {
	const op = "service.query.OrganizerStats"

	st, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyOrganizerStats(organizerID),
		s.cfg.StatsTTL,
		func(ctx context.Context) (domain.OrganizerStats, error) {
			st, err := s.ledger.OrganizerStats(ctx, organizerID)
			if err != nil {
				return domain.OrganizerStats{}, err
			}

			return *st, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &st, nil
}

// EventStats aggregates attendees and revenue over paid bookings of one
// event.
//
// Returns:
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) EventStats(ctx context.Context, eventID uuid.UUID) (*domain.EventStats, error) {
	const op = "service.query.EventStats"

	st, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyEventStats(eventID),
		s.cfg.StatsTTL,
		func(ctx context.Context) (domain.EventStats, error) {
			st, err := s.ledger.EventStats(ctx, eventID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.EventStats{}, ErrEventNotFound
				}

				return domain.EventStats{}, err
			}

			return *st, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &st, nil
}
