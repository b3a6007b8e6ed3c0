package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/alerts"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/api"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/auth"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/config"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/export"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/metrics"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/pipeline"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/source"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/ticker"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/tracing"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/websocket"
	"github.com/dennisdiepolder/monti/cdrinsight/pkg/middleware"
)

const serviceName = "cdr-insight"

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Str("query_driver", cfg.QueryDriver).
		Bool("export_enabled", cfg.ExportEnabled()).
		Msg("starting cdr-insight server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Environment,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		Insecure:     cfg.TracingInsecure,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	// Pipeline
	coord := pipeline.NewCoordinator(pipeline.Options{
		Parallel: cfg.ParallelAggregation,
		Alerts: alerts.Rules{
			MinAnsweredRate: cfg.AlertMinAnsweredRate,
			MaxFailedRate:   cfg.AlertMaxFailedRate,
			MaxAvgWait:      cfg.AlertMaxAvgWait,
			MinCalls:        cfg.AlertMinCalls,
		},
	}, m, log.Logger)

	// Create WebSocket hub and push every published snapshot to it
	hub := websocket.NewHub(m, log.Logger)
	go hub.Run()
	coord.Subscribe(hub.PublishSnapshot)

	if cfg.StatusInterval > 0 {
		go ticker.NewTicker(hub, coord, cfg.StatusInterval, log.Logger).Start(ctx)
	}

	// Remote query source
	src, err := source.New(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize query source")
	}
	defer src.Close()

	apiOpts := api.Options{
		Coordinator:    coord,
		Source:         src,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TableRowLimit:  cfg.TableRowLimit,
		Logger:         log.Logger,
	}
	if cfg.ExportEnabled() {
		sink, err := export.NewSink(export.SinkConfig{
			Bucket:          cfg.ExportBucket,
			Endpoint:        cfg.ExportEndpoint,
			Region:          cfg.ExportRegion,
			AccessKeyID:     cfg.ExportAccessKeyID,
			SecretAccessKey: cfg.ExportSecretAccessKey,
			Prefix:          cfg.ExportPrefix,
		}, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize export sink")
		}
		apiOpts.Exporter = sink
	}
	apiHandler := api.NewHandler(apiOpts)

	authenticator := auth.NewAuthenticator(auth.Options{
		SkipAuth:   cfg.SkipAuth,
		JWTSecret:  cfg.JWTSecret,
		OIDCIssuer: cfg.OIDCIssuer,
	}, log.Logger)
	if cfg.SkipAuth {
		log.Warn().Msg("authentication disabled (SKIP_AUTH=true)")
	}

	// Create WebSocket handler
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.Logger(log.Logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Handler(registry))

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)
		r.With(rateLimiter(ctx, cfg)).Route("/api", apiHandler.Register)
		r.With(auth.RequireRole(auth.RoleViewer)).Get("/ws", wsHandler.ServeHTTP)
	})

	// Create HTTP server. Writes allow for large workbook downloads.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the ticker
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server stopped")
}

// rateLimiter limits API requests per user. Counters live in Redis when
// REDIS_URL is set so replicas share them.
func rateLimiter(ctx context.Context, cfg *config.Config) func(http.Handler) http.Handler {
	if cfg.RateLimitPerMinute == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	var store middleware.RateLimitStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		store = middleware.NewRedisRateLimitStore(redis.NewClient(opts), log.Logger)
		log.Info().Str("addr", opts.Addr).Msg("rate limit counters in redis")
	} else {
		mem := middleware.NewInMemoryRateLimitStore()
		go mem.StartCleanup(ctx, 5*time.Minute)
		store = mem
	}

	limit := middleware.RateLimitConfig{RequestsPerWindow: cfg.RateLimitPerMinute, WindowDuration: time.Minute}
	return middleware.RateLimiter(store, limit, middleware.UserKeyFunc(func(r *http.Request) string {
		if claims, ok := auth.GetUserFromContext(r.Context()); ok {
			return claims.Email
		}
		return ""
	}))
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"%s"}`, serviceName)
}
