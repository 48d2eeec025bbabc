package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus values are part of the persisted contract; dashboards and
// check-in tooling read them directly from the bookings table.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// CanTransition reports whether moving from s to the given status is a legal
// forward step: pending→{paid,failed}, paid→refunded.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return to == PaymentPaid || to == PaymentFailed
	case PaymentPaid:
		return to == PaymentRefunded
	}
	return false
}

// Terminal reports whether no further forward transition is expected without
// an explicit refund action.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentRefunded
}

type Event struct {
	ID          uuid.UUID `json:"id"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	IsFeatured  bool      `json:"is_featured"`
	Starts      time.Time `json:"starts_at"`
	Price       float64   `json:"price"`
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"created_at"`
}

type Booking struct {
	ID            uuid.UUID     `json:"id"`
	EventID       uuid.UUID     `json:"event_id"`
	AttendeeID    uuid.UUID     `json:"attendee_id"`
	TicketCount   int           `json:"ticket_count"`
	TotalPrice    float64       `json:"total_price"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentRef    string        `json:"payment_ref,omitempty"`
	TicketCode    string        `json:"ticket_code,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type OrganizerStats struct {
	TotalEvents  int64   `json:"total_events"`
	TotalTickets int64   `json:"total_tickets"`
	TotalRevenue float64 `json:"total_revenue"`
}

type EventStats struct {
	Attendees int64   `json:"attendees"`
	Revenue   float64 `json:"revenue"`
}
