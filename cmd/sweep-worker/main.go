package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
	"github.com/clinagenda/turnos/internal/config"
	"github.com/clinagenda/turnos/internal/db"
	"github.com/clinagenda/turnos/internal/notify"
	"github.com/clinagenda/turnos/internal/observability/metrics"
	redisclient "github.com/clinagenda/turnos/internal/redis"
	"github.com/clinagenda/turnos/internal/turno"
	"github.com/clinagenda/turnos/pkg/logging"
)

// The worker runs the auto-cancellation sweep on SweepInterval and purges
// audit records past retention once a day.
const purgeInterval = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("sweep worker starting",
		"env", cfg.Env,
		"interval", cfg.SweepInterval.String(),
		"grace_window", cfg.GraceWindow.String(),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
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

	runSweep(rootCtx, svc, cfg.GraceWindow, logger)

	sweepTicker := time.NewTicker(cfg.SweepInterval)
	defer sweepTicker.Stop()
	purgeTicker := time.NewTicker(purgeInterval)
	defer purgeTicker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweep worker")
			return
		case <-sweepTicker.C:
			runSweep(rootCtx, svc, cfg.GraceWindow, logger)
		case <-purgeTicker.C:
			runPurge(rootCtx, auditStore, cfg.AuditRetention, logger)
		}
	}
}

func runSweep(ctx context.Context, svc *turno.Service, grace time.Duration, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	cancelled, err := svc.RunAutoCancellationSweep(runCtx, time.Now().UTC(), grace)
	if err != nil {
		logger.Error("sweep run failed", "error", err)
		return
	}
	logger.Info("sweep run finished",
		"cancelled", cancelled,
		"duration", time.Since(start).String(),
	)
}

func runPurge(ctx context.Context, store *audit.Store, retention time.Duration, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-retention)
	purged, err := store.PurgeBefore(runCtx, cutoff)
	if err != nil {
		logger.Error("audit purge failed", "error", err)
		return
	}
	if purged > 0 {
		logger.Info("audit purge finished", "purged", purged, "cutoff", cutoff.Format(time.RFC3339))
	}
}
