package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/neexbeast/weather-aggregator/internal/api"
	"github.com/neexbeast/weather-aggregator/internal/config"
	"github.com/neexbeast/weather-aggregator/internal/history"
	"github.com/neexbeast/weather-aggregator/internal/storage"
	"github.com/neexbeast/weather-aggregator/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	store, closeStore, err := openHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	zone, useCityOffset, err := cfg.ForecastZone()
	if err != nil {
		return fmt.Errorf("resolving forecast zone: %w", err)
	}

	// Wire dependencies.
	var limiter *rate.Limiter
	if cfg.UpstreamRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.UpstreamRateLimit), cfg.UpstreamRateBurst)
	}
	client := weather.NewClient(weather.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Units:   cfg.Units,
		Timeout: cfg.UpstreamTimeout,
		Delay:   cfg.UpstreamDelay,
		Limiter: limiter,
		Logger:  log,
	})
	service := weather.NewService(client, zone, useCityOffset, log)
	locator := weather.NewGeoLocator(cfg.IPLookupURL, cfg.GeoLookupURL, cfg.UpstreamTimeout)
	handlers := api.NewHandlers(service, client, locator, store, log)

	router := api.NewRouter(handlers, store, api.RouterOptions{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port, "history_backend", cfg.HistoryBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// openHistory builds the configured history backend and returns a func that
// releases its connections.
func openHistory(ctx context.Context, cfg *config.Config, log *slog.Logger) (history.Store, func(), error) {
	switch cfg.HistoryBackend {
	case "redis":
		client, err := history.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return history.NewRedisStore(client, cfg.HistoryLimit), func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := storage.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		applied, err := storage.RunMigrations(ctx, pool, cfg.MigrationsDir)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied", "count", len(applied), "files", applied)
		return storage.NewRepository(pool, cfg.HistoryLimit), pool.Close, nil

	default:
		return history.NewFileStore(cfg.HistoryFile, cfg.HistoryLimit), func() {}, nil
	}
}
