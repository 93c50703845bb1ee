package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/watershed-finder/internal/adapter/arcgis"
	"github.com/couchcryptid/watershed-finder/internal/adapter/httpadapter"
	"github.com/couchcryptid/watershed-finder/internal/adapter/nominatim"
	"github.com/couchcryptid/watershed-finder/internal/adapter/ws"
	"github.com/couchcryptid/watershed-finder/internal/config"
	"github.com/couchcryptid/watershed-finder/internal/observability"
	"github.com/couchcryptid/watershed-finder/internal/pipeline"
	"github.com/couchcryptid/watershed-finder/internal/ratelimit"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// One limiter for the whole process: Nominatim's policy is per client.
	limiter := ratelimit.New(cfg.GeocodeMinInterval, nil)
	geocoder := nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.ProviderTimeout, limiter, metrics, logger)
	boundaries := arcgis.NewClient(cfg.ArcGISQueryURL, cfg.ProviderTimeout, metrics, logger)

	svc := pipeline.NewService(pipeline.Providers{
		Geocoder:  geocoder,
		Boundary:  boundaries,
		Adjacency: boundaries,
	}, logger, metrics)

	mapHandler := ws.NewHandler(svc, cfg.CORSOrigins, metrics, logger)
	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:           cfg.HTTPAddr,
		AllowedOrigins: cfg.CORSOrigins,
		LookupRate:     cfg.LookupRateLimit,
		LookupBurst:    cfg.LookupRateBurst,
	}, svc, mapHandler, metrics, logger)

	logger.Info("providers configured",
		"nominatim", cfg.NominatimURL,
		"arcgis", cfg.ArcGISQueryURL,
		"geocode_min_interval", cfg.GeocodeMinInterval,
		"provider_timeout", cfg.ProviderTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	svc.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := mapHandler.Shutdown(shutdownCtx); err != nil {
		logger.Error("map session shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
