package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/careslot/scheduling/internal/api"
	"github.com/careslot/scheduling/internal/appointment"
	"github.com/careslot/scheduling/internal/booking"
	"github.com/careslot/scheduling/internal/config"
	"github.com/careslot/scheduling/internal/db"
	"github.com/careslot/scheduling/internal/logging"
	redisclient "github.com/careslot/scheduling/internal/redis"
	"github.com/careslot/scheduling/internal/schedule"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("api-server", "dev")
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New("api-server", cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	scheduleRepo := schedule.NewPgRepository(pgPool)
	registry := schedule.NewRegistry(scheduleRepo)

	apptRepo := appointment.NewPgRepository(pgPool)
	detector := appointment.NewDetector(registry, apptRepo)

	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	audit := booking.NewRepoAuditLogger(apptRepo, log)
	notifier := booking.NewLogNotifier(log)
	reminders := booking.NewRedisReminderScheduler(rdb, 24*time.Hour)

	svc := booking.NewService(registry, detector, apptRepo, locker, audit, notifier, reminders, log)

	// No advisor is wired by default; the chain then holds only the
	// deterministic strategy.
	var advisor booking.Advisor
	chain := booking.NewChain(svc, advisor, cfg.AdvisoryMinConfidence, log)

	router := api.NewRouter(api.RouterConfig{
		Service:         svc,
		Chain:           chain,
		Registry:        registry,
		PgPool:          pgPool,
		Redis:           rdb,
		Env:             cfg.Env,
		Version:         version,
		AdvisoryEnabled: cfg.AdvisoryEnabled,
		Logger:          log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}

	log.Info().Msg("api-server stopped")
}
