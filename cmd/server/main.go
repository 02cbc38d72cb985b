package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmacy/backend/internal/alerts"
	"pharmacy/backend/internal/cache"
	"pharmacy/backend/internal/config"
	"pharmacy/backend/internal/events"
	"pharmacy/backend/internal/finance"
	"pharmacy/backend/internal/httpapi"
	"pharmacy/backend/internal/logger"
	"pharmacy/backend/internal/metrics"
	"pharmacy/backend/internal/service"
	"pharmacy/backend/internal/store"
	"pharmacy/backend/internal/store/memory"
	pgstore "pharmacy/backend/internal/store/postgres"
	sqlitestore "pharmacy/backend/internal/store/sqlite"
)

// backend is an opened repository plus its lifecycle hooks.
type backend struct {
	repo  store.Repository
	ping  func(ctx context.Context) error
	close func() error
}

func main() {
	cfg := config.Load()
	logger.Init("pharmacy-backend", cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)
	log := logger.Component("main")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("repository unavailable")
	}
	closers := []func() error{db.close}
	log.Info().Str("driver", cfg.StoreDriver).Msg("repository ready")

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop report cache")
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Str("addr", cfg.RedisAddr).Msg("report cache: redis")
		}
	}

	publisher := newPublisher(cfg)
	closers = append(closers, publisher.Close)

	m := metrics.New()
	reports := finance.NewEngine(reportCache, cfg.ReportCacheTTL())
	svc := service.New(db.repo, reports, publisher, m, cfg.AlertThresholds)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), db.repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        m,
		Driver:         cfg.StoreDriver,
		Ping:           db.ping,
	})

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go alerts.NewScheduler(cfg.AlertScanInterval(), svc.ScanCount).Run(runCtx)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("pharmacy backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// openRepository connects the configured storage backend. A configured
// database that cannot be reached is fatal; there is no in-memory fallback.
func openRepository(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return backend{}, fmt.Errorf("migrate postgres: %w", err)
		}
		return backend{repo: pg, ping: pg.Ping, close: pg.Close}, nil
	case config.DriverSQLite:
		lite, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return backend{}, fmt.Errorf("open sqlite: %w", err)
		}
		return backend{repo: lite, ping: lite.Ping, close: lite.Close}, nil
	case config.DriverMemory:
		return backend{repo: memory.NewSeeded(), close: func() error { return nil }}, nil
	default:
		return backend{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// newPublisher returns a Kafka publisher when brokers are configured and
// a no-op one otherwise. An unreachable broker does not stop the server.
func newPublisher(cfg config.Config) events.Publisher {
	log := logger.Component("main")
	if len(cfg.KafkaBrokers) == 0 {
		return events.NoopPublisher{}
	}
	publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Warn().Err(err).Strs("brokers", cfg.KafkaBrokers).Msg("kafka unavailable, events disabled")
		return events.NoopPublisher{}
	}
	log.Info().Str("topic", cfg.KafkaTopic).Msg("events: kafka")
	return publisher
}
