package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-request-desk/internal/account"
	"github.com/hackgods/clinic-request-desk/internal/api"
	"github.com/hackgods/clinic-request-desk/internal/appointment"
	"github.com/hackgods/clinic-request-desk/internal/config"
	"github.com/hackgods/clinic-request-desk/internal/db"
	"github.com/hackgods/clinic-request-desk/internal/events"
	"github.com/hackgods/clinic-request-desk/internal/logging"
	redisclient "github.com/hackgods/clinic-request-desk/internal/redis"
)

type publisher interface {
	appointment.EventPublisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "api-server")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("timezone", cfg.Location.String()).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api-server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("api-server stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	if cfg.MigrateOnStart {
		applied, err := db.NewMigrator(pgPool).Up(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			logger.Info().Str("migration", name).Msg("migration applied")
		}
	}

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	var pub publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitExchange, logger)
		if err != nil {
			return err
		}
		pub = rp
		logger.Info().Str("exchange", cfg.RabbitExchange).Msg("publishing request events to RabbitMQ")
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing event publisher")
		}
	}()

	requests, err := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		redisclient.NewRedisRequestLocker(rdb, cfg.LockTTL),
		pub,
		cfg,
		logger,
	)
	if err != nil {
		return err
	}

	accounts, err := account.NewService(
		account.NewPgRepository(pgPool),
		account.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
		logger,
	)
	if err != nil {
		return err
	}

	if _, err := requests.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial request load failed, will retry on first read")
	}

	router := api.NewRouter(api.RouterConfig{
		Requests:      requests,
		Accounts:      accounts,
		PostgresCheck: pgPool.Ping,
		RedisCheck:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		Logger:        logger,
		Env:           cfg.Env,
		Version:       cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
