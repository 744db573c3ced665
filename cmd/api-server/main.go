package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/api"
	"github.com/clinagenda/turnos/internal/audit"
	"github.com/clinagenda/turnos/internal/config"
	"github.com/clinagenda/turnos/internal/db"
	"github.com/clinagenda/turnos/internal/notify"
	"github.com/clinagenda/turnos/internal/observability/metrics"
	redisclient "github.com/clinagenda/turnos/internal/redis"
	"github.com/clinagenda/turnos/internal/turno"
	"github.com/clinagenda/turnos/pkg/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	repo := turno.NewPgRepository(pool)
	agendaStore := agenda.NewPgStore(pool)
	auditStore := audit.NewStore(pool)

	validator := turno.NewValidator(agendaStore, repo)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	notifier := notify.NewLogNotifier(logger)
	schedMetrics := metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer)

	svc := turno.NewService(repo, validator, locker, notifier, schedMetrics, logger)
	generator := agenda.NewGenerator(agendaStore, agendaStore, repo)

	router := api.NewRouter(api.RouterConfig{
		Service:      svc,
		Validator:    validator,
		Generator:    generator,
		AgendaStore:  agendaStore,
		AuditStore:   auditStore,
		PgPool:       pool,
		RedisClient:  rdb,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
		HorizonWeeks: cfg.HorizonWeeks,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "port", cfg.HTTPPort, "env", cfg.Env, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
