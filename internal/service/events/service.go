package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/clock"
	"github.com/ktsaryk/eventhub/internal/domain"
	"github.com/ktsaryk/eventhub/internal/repository"
)

// Ledger is the slice of the ledger store event publishing writes to.
type Ledger interface {
	CreateEvent(ctx context.Context, e domain.Event) (uuid.UUID, error)
}

// Service is the thin organizer-facing glue for publishing events. Capacity
// and price are validated here because they are immutable once bookings
// start admitting against them.
type Service struct {
	ledger Ledger
	clock  clock.Clock
}

func New(ledger Ledger, clk clock.Clock) *Service {
	return &Service{
		ledger: ledger,
		clock:  clk,
	}
}

// Publish creates an event owned by the organizer and returns its ID.
//
// Returns:
//   - error: events.ErrInvalidEvent if title, capacity, price or start time
//     are unusable.
//   - error: events.ErrEventConflict if the insert violates a uniqueness
//     constraint.
func (s *Service) Publish(ctx context.Context, e domain.Event) (uuid.UUID, error) {
	const op = "service.events.Publish"

	switch {
	case e.OrganizerID == uuid.Nil:
		return uuid.Nil, fmt.Errorf("%s:%w: missing organizer", op, ErrInvalidEvent)
	case e.Title == "":
		return uuid.Nil, fmt.Errorf("%s:%w: missing title", op, ErrInvalidEvent)
	case e.Capacity < 1:
		return uuid.Nil, fmt.Errorf("%s:%w: capacity must be at least 1", op, ErrInvalidEvent)
	case e.Price < 0:
		return uuid.Nil, fmt.Errorf("%s:%w: price must not be negative", op, ErrInvalidEvent)
	case !e.Starts.After(s.clock.Now()):
		return uuid.Nil, fmt.Errorf("%s:%w: start time must be in the future", op, ErrInvalidEvent)
	}

	id, err := s.ledger.CreateEvent(ctx, e)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrEventConflict)
		}

		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}
