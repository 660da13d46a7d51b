// Causal Labs - experiment orchestration server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/causal-labs/internal/api"
	"github.com/ashureev/causal-labs/internal/config"
	"github.com/ashureev/causal-labs/internal/document"
	"github.com/ashureev/causal-labs/internal/experiment"
	"github.com/ashureev/causal-labs/internal/identity"
	"github.com/ashureev/causal-labs/internal/middleware"
	"github.com/ashureev/causal-labs/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.BackendURL)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	// No client timeout: run streams stay open for the whole experiment.
	backend := experiment.NewHTTPBackend(cfg.BackendURL, &http.Client{}, logger)
	runner := experiment.NewRunner(logger,
		experiment.WithReadBufferSize(cfg.Experiment.StreamReadBuffer),
		experiment.WithNavigator(func(_ context.Context, st experiment.State) {
			logger.Info("[EXPERIMENT] Results ready", "chat_id", st.ChatID, "path", st.ResultsPath)
		}),
	)
	sessions := experiment.NewSessions(backend, runner, repo, logger)
	defer sessions.Shutdown()

	documents := document.NewService(
		repo,
		document.NewHandler(cfg.Experiment.Steps, logger),
		document.NewStreams(cfg.Experiment.DataStreamSize, cfg.Experiment.DataStreamDocuments),
		logger,
	)

	handler, err := api.NewHandler(sessions, backend, documents, repo, api.Options{
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		KeepaliveInterval:  cfg.SSE.KeepaliveInterval,
		RetryDelay:         cfg.SSE.RetryDelay,
		RateLimitRequests:  cfg.RateLimit.Requests,
		RateLimitWindow:    cfg.RateLimit.Window,
		AllowedOrigin:      allowedOrigin(cfg),
		IsDev:              cfg.IsDevelopment(),
	}, logger)
	if err != nil {
		return err
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{allowedOrigin(cfg)}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	r.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(r)

	// SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		experiment.RunReaper(gctx, sessions, cfg.SessionTTL, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func allowedOrigin(cfg *config.Config) string {
	if cfg.FrontendURL == "" {
		return "*"
	}
	return cfg.FrontendURL
}
