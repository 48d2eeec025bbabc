package service

import (
	"github.com/ktsaryk/eventhub/internal/checkout"
	"github.com/ktsaryk/eventhub/internal/clock"
	redisx "github.com/ktsaryk/eventhub/internal/redis"
	postgres "github.com/ktsaryk/eventhub/internal/repository/postgres"
	redisrepo "github.com/ktsaryk/eventhub/internal/repository/redis"
	"github.com/ktsaryk/eventhub/internal/service/booking"
	"github.com/ktsaryk/eventhub/internal/service/events"
	"github.com/ktsaryk/eventhub/internal/service/payment"
	"github.com/ktsaryk/eventhub/internal/service/query"
)

type Services struct {
	Booking *booking.Service
	Payment *payment.Service
	Query   *query.Service
	Events  *events.Service
}

type Config struct {
	Booking booking.Config
	Payment payment.Config
	Query   query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redisrepo.Cache,
	pubsub *redisx.BookingsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	provider checkout.Provider,
	clk clock.Clock,
	cfg Config,
) *Services {
	return &Services{
		Booking: booking.New(store, cache, pubsub, limiter, clk, cfg.Booking),
		Payment: payment.New(store, provider, cache, pubsub, clk, cfg.Payment),
		Query:   query.New(store, cache, cfg.Query),
		Events:  events.New(store, clk),
	}
}
