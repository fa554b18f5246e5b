package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/coffeechat/scheduler/internal/gcal"
	"github.com/coffeechat/scheduler/internal/scheduling"
)

type RouterConfig struct {
	Service  *scheduling.Service
	Calendar *gcal.Client // nil when google integration is not configured
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   *zap.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Get("/users/{id}/slots", publicSlotsHandler(cfg.Service))
	r.Get("/me/slots", ownSlotsHandler(cfg.Service))
	r.Post("/me/slots", saveSlotsHandler(cfg.Service))
	r.Post("/me/reconcile", reconcileHandler(cfg.Service))
	r.Post("/me/calendar/sync", calendarSyncHandler(cfg.Calendar))

	// Appointments
	r.Post("/appointments", bookHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))

	return r
}
