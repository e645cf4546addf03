// Package main is the entry point for the API server.
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
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deckforge-ai/presentation-platform/internal/agent"
	"github.com/deckforge-ai/presentation-platform/internal/config"
	"github.com/deckforge-ai/presentation-platform/internal/handler"
	"github.com/deckforge-ai/presentation-platform/internal/llm"
	"github.com/deckforge-ai/presentation-platform/internal/middleware"
	natsclient "github.com/deckforge-ai/presentation-platform/internal/nats"
	"github.com/deckforge-ai/presentation-platform/internal/service"
	"github.com/deckforge-ai/presentation-platform/internal/session"
	"github.com/deckforge-ai/presentation-platform/internal/tools"
	"github.com/deckforge-ai/presentation-platform/pkg/logger"
	"github.com/deckforge-ai/presentation-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "presentation-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to the analytics database. This is the system's data plane;
	// without it the tools have nothing to query.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to create analytics pool", zap.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to NATS for run telemetry. Optional: the platform serves
	// requests without it.
	var publisher *natsclient.Publisher
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Warn("NATS unavailable, run telemetry disabled", zap.Error(err))
	} else {
		defer natsClient.Close()
		publisher = natsclient.NewPublisher(natsClient)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Warn("failed to ensure telemetry stream", zap.Error(err))
		}
	}

	// Build the shared tool registry.
	registry := tools.NewRegistry(log)
	tools.RegisterAnalyticsTools(registry, tools.NewAnalyticsTools(pool, log))
	tools.RegisterCRMTools(registry, tools.NewCRMClient(cfg.CRMBaseURL, cfg.CRMAPIKey, log))
	log.Info("tool registry ready", zap.Strings("tools", registry.Names()))

	// Initialize LLM runners.
	runners := make(map[string]agent.Runner)
	var anthropicClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		client, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client", zap.Error(err))
		} else {
			anthropicClient = client
			runners["anthropic"] = agent.NewSelfManagedRunner(client, cfg.AgentHistoryLimit, log)
		}
	}
	if cfg.OpenAIAPIKey != "" {
		runners["openai"] = agent.NewSdkManagedRunner(cfg.OpenAIAPIKey, log)
	}
	if len(runners) == 0 {
		log.Warn("no LLM API keys configured, generation endpoints will fail")
	}

	// Session store with retention GC.
	sessions, err := session.NewStore(cfg.SessionDir, log)
	if err != nil {
		log.Error("failed to create session store", zap.Error(err))
		os.Exit(1)
	}
	gcStop := make(chan struct{})
	sessions.StartGC(cfg.SessionGCInterval, cfg.SessionRetention, gcStop)
	defer close(gcStop)

	// Initialize services
	defaultModels := map[string]string{
		"anthropic": cfg.AnthropicModel,
		"openai":    cfg.OpenAIModel,
	}
	generateSvc := service.NewGenerateService(service.GenerateConfig{
		Runners:         runners,
		Registry:        registry,
		Sessions:        sessions,
		Publisher:       publisher,
		Logger:          log,
		DefaultProvider: cfg.DefaultProvider,
		DefaultModels:   defaultModels,
		MaxTurns:        cfg.AgentMaxTurns,
	})
	tweakSvc := service.NewTweakService(service.TweakConfig{
		Client:          anthropicClient,
		Runners:         runners,
		Registry:        registry,
		Sessions:        sessions,
		Publisher:       publisher,
		Logger:          log,
		DefaultProvider: cfg.DefaultProvider,
		DefaultModels:   defaultModels,
		MaxTurns:        cfg.AgentMaxTurns,
	})

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(pool, natsClient)
	generateHandler := handler.NewGenerateHandler(generateSvc, log)
	tweakHandler := handler.NewTweakHandler(tweakSvc, sessions, log)
	sessionHandler := handler.NewSessionHandler(sessions, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/presentations", func(r chi.Router) {
			r.Post("/", generateHandler.Generate)
			r.Get("/", sessionHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Get("/document", sessionHandler.Document)
				r.Delete("/", sessionHandler.Delete)
				r.Post("/tweak", tweakHandler.Tweak)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
