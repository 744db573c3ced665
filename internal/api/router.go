package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
	"github.com/clinagenda/turnos/internal/turno"
	"github.com/clinagenda/turnos/pkg/logging"
)

type RouterConfig struct {
	Service      *turno.Service
	Validator    *turno.Validator
	Generator    *agenda.Generator
	AgendaStore  agenda.Store
	AuditStore   *audit.Store
	PgPool       *pgxpool.Pool
	RedisClient  *redis.Client
	Logger       *logging.Logger
	Env          string
	Version      string
	HorizonWeeks int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.RedisClient, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/slots", listSlotsHandler(cfg.Generator, cfg.HorizonWeeks))
		r.Get("/availability", validateAvailabilityHandler(cfg.Validator))

		r.Route("/turnos", func(r chi.Router) {
			r.Post("/", bookTurnoHandler(cfg.Service))
			r.Get("/", listTurnosHandler(cfg.Service))
			r.Get("/{id}", getTurnoHandler(cfg.Service))
			r.Post("/{id}/confirmar", confirmTurnoHandler(cfg.Service))
			r.Post("/{id}/cancelar", cancelTurnoHandler(cfg.Service))
			r.Post("/{id}/completar", completeTurnoHandler(cfg.Service))
			r.Post("/{id}/ausente", markAbsentHandler(cfg.Service))
			r.Post("/{id}/reagendar", rescheduleTurnoHandler(cfg.Service))
			r.Delete("/{id}", deleteTurnoHandler(cfg.Service))
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", listTemplatesHandler(cfg.AgendaStore))
			r.Post("/", createTemplateHandler(cfg.AgendaStore))
		})

		r.Route("/exceptions", func(r chi.Router) {
			r.Post("/", createExceptionHandler(cfg.AgendaStore))
			r.Delete("/{id}", deleteExceptionHandler(cfg.AgendaStore))
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", queryAuditHandler(cfg.AuditStore))
			r.Get("/counts", auditCountsHandler(cfg.AuditStore))
		})
	})

	return r
}
