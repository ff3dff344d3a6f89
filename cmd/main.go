package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deepgram/readme-relay/internal/api/v1/handlers"
	"github.com/deepgram/readme-relay/internal/config"
	"github.com/deepgram/readme-relay/internal/metrics"
	"github.com/deepgram/readme-relay/internal/services"
	"github.com/deepgram/readme-relay/pkg/logger"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(logger.APP, "Invalid configuration: %v", err)
		os.Exit(1)
	}
	logger.Configure(cfg.LogLevel, cfg.LogFormat)

	svcs, err := services.InitializeServices(cfg)
	if err != nil {
		logger.Fatal(logger.APP, "Failed to initialize services: %v", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(svcs),
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout, relays are bounded by RELAY_TIMEOUT instead
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(logger.APP, "ListenAndServe error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown does not wait for hijacked WebSocket connections, and streaming
	// responses would otherwise hold it until the deadline.
	svcs.Shutdown()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupRouter(svcs *services.Services) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleHealth(svcs.GetConnectionManager(), w, r)
	}).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	handlers.RegisterV1Routes(r, svcs)

	origins := svcs.GetConfig().AllowedOrigins
	if len(origins) == 0 {
		return r
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		// fetch never surfaces trailers, so X-Relay-Status is not listed
		ExposedHeaders: []string{handlers.RequestIDHeader},
		MaxAge:         300,
	})(r)
}
