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

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"poleplan/internal/api"
	"poleplan/internal/buildinfo"
	"poleplan/internal/config"
	"poleplan/internal/metrics"
)

func main() {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	metrics.RegisterDefault()

	srvDeps, err := api.NewServer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}

	mux := http.NewServeMux()

	// Pole backlog
	mux.HandleFunc("/v1/locations", srvDeps.LocationsHandler)
	mux.HandleFunc("/v1/locations/", srvDeps.LocationByIDHandler)

	// Drivers and days
	mux.HandleFunc("/v1/drivers", srvDeps.DriversHandler)
	mux.HandleFunc("/v1/drivers/", srvDeps.DriversHandler)
	mux.HandleFunc("/v1/days/", srvDeps.DaysHandler)

	// Planning
	mux.HandleFunc("/v1/plan", srvDeps.PlanHandler)
	mux.HandleFunc("/v1/routes", srvDeps.RoutesHandler)
	mux.HandleFunc("/v1/routes/", srvDeps.RouteByIDHandler)

	// Travel model
	mux.HandleFunc("/v1/travel-samples", srvDeps.TravelSamplesHandler)
	mux.HandleFunc("/v1/travel-model", srvDeps.TravelModelHandler)
	mux.HandleFunc("/v1/travel-model/approve", srvDeps.TravelModelHandler)

	// Subscriptions and event streams
	mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)
	mux.HandleFunc("/v1/events/stream", srvDeps.EventsStreamHandler)
	mux.HandleFunc("/v1/events/ws", srvDeps.EventsWSHandler)

	// Admin
	mux.HandleFunc("/v1/admin/solver-config", srvDeps.SolverConfigHandler)
	mux.HandleFunc("/v1/admin/plan-metrics", srvDeps.PlanMetricsHandler)

	// Health and metrics
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.AccessLog(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	worker := srvDeps.NewWebhookWorker()
	worker.Start()

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", buildinfo.Version).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	close(worker.Stop)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "poleplan-api").Logger()
}
