package httpgin

import (
	"time"

	"github.com/ktsaryk/eventhub/internal/domain"
)

type CreateEventRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	Category    string  `json:"category"`
	ImageURL    string  `json:"image_url"`
	IsFeatured  bool    `json:"is_featured"`
	StartsAt    string  `json:"starts_at" binding:"required"`
	Price       float64 `json:"price"`
	Capacity    int     `json:"capacity" binding:"required,gt=0"`
}

type CreateBookingRequest struct {
	TicketCount int `json:"ticket_count" binding:"required,gt=0"`
}

type PaymentCallbackRequest struct {
	BookingID string `json:"booking_id" binding:"required,uuid"`
	Status    string `json:"status" binding:"required"`
	Reference string `json:"reference"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type EventResponse struct {
	domain.Event
	BookingsCount int64 `json:"bookings_count"`
}

type CreateEventResponse struct {
	EventID string `json:"event_id"`
}

type BookingResponse struct {
	BookingID     string  `json:"booking_id"`
	EventID       string  `json:"event_id"`
	TicketCount   int     `json:"ticket_count"`
	TotalPrice    float64 `json:"total_price"`
	PaymentStatus string  `json:"payment_status"`
	TicketCode    string  `json:"ticket_code,omitempty"`
	CheckoutURL   string  `json:"checkout_url,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type ExpireResponse struct {
	Expired int64 `json:"expired"`
}

func toBookingResponse(b *domain.Booking, checkoutURL string) BookingResponse {
	return BookingResponse{
		BookingID:     b.ID.String(),
		EventID:       b.EventID.String(),
		TicketCount:   b.TicketCount,
		TotalPrice:    b.TotalPrice,
		PaymentStatus: string(b.PaymentStatus),
		TicketCode:    b.TicketCode,
		CheckoutURL:   checkoutURL,
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
