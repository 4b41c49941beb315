package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brunamourao/usermail-backend/api/controllers"
	"github.com/brunamourao/usermail-backend/api/middleware"
	"github.com/brunamourao/usermail-backend/internal/users"
	"github.com/brunamourao/usermail-backend/pkg/config"
	"github.com/brunamourao/usermail-backend/pkg/logger"
	"github.com/brunamourao/usermail-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger controllers.Pinger,
	redisClient *redis.Client,
	pubsubPinger controllers.Pinger,
	userService users.Service,
	dlqReader controllers.DLQReader,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	registerPolicy := middleware.NewRateLimitPolicy(
		"register",
		cfg.RateLimit.RegisterWindow,
		cfg.RateLimit.RegisterIPLimit,
		cfg.RateLimit.RegisterEmailLimit,
	)

	readiness := map[string]controllers.Pinger{
		"postgres": dbPinger,
		"pubsub":   pubsubPinger,
	}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.With(middleware.RateLimit(registerPolicy, redisClient, logg)).Post("/", controllers.CreateUser(userService, logg))
		r.Get("/", controllers.ListUsers(userService, logg))
		r.Get("/{id}", controllers.GetUser(userService, logg))
	})

	r.Route("/api/v1/outbox/dlq", func(r chi.Router) {
		r.Get("/", controllers.ListDLQ(dlqReader, logg))
		r.Get("/{messageId}", controllers.GetDLQMessage(dlqReader, logg))
	})

	return r
}
