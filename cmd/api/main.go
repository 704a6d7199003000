package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TechniCodeCamp2025/fleet-api/internal/api"
	"github.com/TechniCodeCamp2025/fleet-api/internal/logging"
	"github.com/TechniCodeCamp2025/fleet-api/internal/metrics"
)

func main() {
	_ = godotenv.Load()
	logging.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log := logging.With("main")

	srv, err := api.NewServer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Datasets
	mux.HandleFunc("/v1/datasets", srv.DatasetsHandler)
	mux.HandleFunc("/v1/datasets/csv", srv.DatasetsCSVHandler)
	mux.HandleFunc("/v1/datasets/", srv.DatasetByIDHandler)

	// Runs
	mux.HandleFunc("/v1/runs", srv.RunsHandler)
	mux.HandleFunc("/v1/runs/", srv.RunByIDHandler) // includes /assignments, /unassigned, /vehicles, /events/stream, /ws

	// Webhook subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/webhook-deliveries", srv.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/debug", srv.DebugJSON)

	// Health & docs
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.HandleFunc("/openapi.yaml", srv.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", srv.SwaggerJSONHandler)
	mux.HandleFunc("/docs", srv.DocsHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           api.RateLimitMiddleware(api.LogMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start webhook worker
	srv.NewWebhookWorker().Start()

	log.Info().Str("addr", addr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
