package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ktsaryk/eventhub/internal/domain"
	redisrepo "github.com/ktsaryk/eventhub/internal/repository/redis"
	"github.com/ktsaryk/eventhub/internal/service"
	"github.com/ktsaryk/eventhub/internal/service/booking"
	"github.com/ktsaryk/eventhub/internal/service/events"
	"github.com/ktsaryk/eventhub/internal/service/payment"
	"github.com/ktsaryk/eventhub/internal/service/query"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS(), IdentityMiddleware())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/events", handleListEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/stats", handleEventStats(svcs))

	r.POST("/events/:id/bookings", handleCreateBooking(svcs, idem))
	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.POST("/bookings/:id/confirm-free", handleConfirmFree(svcs))

	// Payment provider callback
	r.POST("/payments/callback", handlePaymentCallback(svcs))

	// Organizer API
	org := r.Group("/", RequireOrganizer())
	{
		org.POST("/events", handleCreateEvent(svcs))
		org.GET("/events/:id/bookings", handleListBookings(svcs))
		org.POST("/bookings/:id/refund", handleRefund(svcs))
		org.GET("/organizers/:id/stats", handleOrganizerStats(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List events
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}  domain.Event
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 0)
		offset := parseIntDefault(c.Query("offset"), 0)

		evts, err := svcs.Query.ListEvents(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, evts, "public, max-age=15", true)
	}
}

// @Summary  Get event with paid-attendee count
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200  {object}  EventResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		st, err := svcs.Query.EventStats(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, EventResponse{
			Event:         *e,
			BookingsCount: st.Attendees,
		}, "public, max-age=60", true)
	}
}

// @Summary  Get event stats (paid bookings only)
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200  {object}  domain.EventStats
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/stats [get]
func handleEventStats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		st, err := svcs.Query.EventStats(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, st, "public, max-age=15", true)
	}
}

// @Summary  Create booking (idempotent)
// @Param    id  path  string  true  "Event ID (uuid)"
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} BookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "capacity exceeded / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /events/{id}/bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		attendeeID, ok := userID(c)
		if !ok {
			return
		}
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemReserve(eventID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		b, err := svcs.Booking.Reserve(
			c.Request.Context(),
			eventID,
			attendeeID,
			req.TicketCount,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		// A priced booking needs a hosted checkout session. Failing to get one
		// never unwinds the admission; the reclaimer handles abandonment.
		var checkoutURL string
		if b.PaymentStatus == domain.PaymentPending && b.TotalPrice > 0 {
			checkoutURL, _ = svcs.Payment.CreateCheckout(c.Request.Context(), b)
		}

		resp := toBookingResponse(b, checkoutURL)

		if idemStorageKey != "" && idem != nil {
			raw, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(raw))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Get booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Query.GetBooking(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b, ""))
	}
}

// @Summary  Confirm a free booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  409 {object} ErrorResponse
// @Router   /bookings/{id}/confirm-free [post]
func handleConfirmFree(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Payment.ConfirmFree(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b, ""))
	}
}

// @Summary  Payment provider callback (idempotent)
// @Param    req body  PaymentCallbackRequest true "payload"
// @Success  200 {object} BookingResponse
// @Failure  409 {object} ErrorResponse "stale callback"
// @Router   /payments/callback [post]
func handlePaymentCallback(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PaymentCallbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		bookingID, err := uuid.Parse(req.BookingID)
		if err != nil {
			badRequest(c, "invalid booking_id")
			return
		}

		var outcome payment.Outcome
		switch req.Status {
		case "success":
			outcome = payment.OutcomeSuccess
		case "failure":
			outcome = payment.OutcomeFailure
		default:
			badRequest(c, "invalid status")
			return
		}

		b, err := svcs.Payment.ApplyResult(
			c.Request.Context(),
			bookingID,
			outcome,
			req.Reference,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b, ""))
	}
}

// @Summary  Publish event
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Failure  400 {object} ErrorResponse
// @Router   /events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		organizerID, ok := userID(c)
		if !ok {
			return
		}
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}

		id, err := svcs.Events.Publish(c.Request.Context(), domain.Event{
			OrganizerID: organizerID,
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			Category:    req.Category,
			ImageURL:    req.ImageURL,
			IsFeatured:  req.IsFeatured,
			Starts:      starts,
			Price:       req.Price,
			Capacity:    req.Capacity,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id.String()})
	}
}

// @Summary  List event bookings
// @Param    id  path  string  true  "Event ID (uuid)"
// @Success  200 {array} BookingResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		bookings, err := svcs.Query.ListBookings(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		resp := make([]BookingResponse, 0, len(bookings))
		for i := range bookings {
			resp = append(resp, toBookingResponse(&bookings[i], ""))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Refund a paid booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  409 {object} ErrorResponse
// @Router   /bookings/{id}/refund [post]
func handleRefund(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Payment.Refund(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b, ""))
	}
}

// @Summary  Organizer stats (paid bookings only)
// @Param    id  path  string  true  "Organizer ID (uuid)"
// @Success  200 {object} domain.OrganizerStats
// @Router   /organizers/{id}/stats [get]
func handleOrganizerStats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		organizerID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		st, err := svcs.Query.OrganizerStats(c.Request.Context(), organizerID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, st, "public, max-age=15", true)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ticket count"})
		return
	case errors.Is(err, booking.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, booking.ErrEventStarted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event already started"})
		return
	case errors.Is(err, booking.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "capacity exceeded"})
		return
	case errors.Is(err, booking.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	case errors.Is(err, booking.ErrUnavailable),
		errors.Is(err, payment.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable"})
		return
	// payment service
	case errors.Is(err, payment.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	case errors.Is(err, payment.ErrMissingReference):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing payment reference"})
		return
	case errors.Is(err, payment.ErrStaleCallback):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "stale callback"})
		return
	case errors.Is(err, payment.ErrInconsistentTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "inconsistent payment state"})
		return
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	case errors.Is(err, query.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	// events service
	case errors.Is(err, events.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, events.ErrEventConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event conflict"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
