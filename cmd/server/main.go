// Codespace coordinator server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/codespace/internal/api"
	"github.com/ashureev/codespace/internal/artifact"
	"github.com/ashureev/codespace/internal/compiler"
	"github.com/ashureev/codespace/internal/config"
	"github.com/ashureev/codespace/internal/dispatch"
	"github.com/ashureev/codespace/internal/ledger"
	"github.com/ashureev/codespace/internal/live"
	"github.com/ashureev/codespace/internal/mcptools"
	"github.com/ashureev/codespace/internal/middleware"
	"github.com/ashureev/codespace/internal/objectstore"
	"github.com/ashureev/codespace/internal/session"
	"github.com/ashureev/codespace/internal/store"
	"github.com/ashureev/codespace/internal/toolcall"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const version = "0.1.0"

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
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	objects, err := openObjectStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize object store: %w", err)
	}
	defer func() {
		if closeErr := objects.Close(); closeErr != nil {
			slog.Error("Failed to close object store", "error", closeErr)
		}
	}()
	slog.Info("Object store ready", "backend", objects.Location(), "inline_threshold", cfg.InlineThreshold)

	var comp compiler.Compiler = compiler.Echo{}
	if cfg.Compiler.URL != "" {
		comp = compiler.NewHTTPClient(cfg.Compiler.URL, cfg.Compiler.Timeout)
		slog.Info("Using remote compiler", "url", cfg.Compiler.URL)
	} else {
		slog.Info("COMPILER_URL not set, using passthrough compiler")
	}

	// Initialize services.
	hub := live.NewHub(cfg.Live.QueueDepth, logger)
	coord := session.New(
		ledger.New(repo, artifact.NewStore(objects, cfg.InlineThreshold)),
		dispatch.New(comp, cfg.Compiler.Timeout, logger),
		hub,
		session.Config{
			QueueDepth:   cfg.Session.QueueDepth,
			IdleTTL:      cfg.Session.IdleTTL,
			MatchTimeout: cfg.Session.MatchTimeout,
			Logger:       logger,
		},
	)
	exec := toolcall.NewExecutor(coord, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck)
	toolsHandler := api.NewToolsHandler(exec)
	codespaceHandler := api.NewCodespaceHandler(coord)
	wsHandler := live.NewWebSocketHandler(hub, live.HandlerConfig{
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		WriteTimeout:  cfg.Live.WriteTimeout,
		PingInterval:  cfg.Live.PingInterval,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())
	codespaceHandler.RegisterRoutes(r, wsHandler)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		toolsHandler.RegisterRoutes(r)
		if cfg.MCPEnabled {
			srv := mcp.NewServer(&mcp.Implementation{Name: "codespace", Version: version}, nil)
			mcptools.Register(srv, exec)
			r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
			slog.Info("MCP endpoint enabled", "path", "/mcp")
		}
	})

	// WriteTimeout stays 0 so live connections are not cut.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	coord.StartReaper(gctx, time.Minute)
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
		defer cancel()

		// Drop live subscribers first so their handlers return.
		hub.Close()
		err := srv.Shutdown(shutdownCtx)
		coord.Close()
		if err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openObjectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (objectstore.Store, error) {
	switch cfg.ObjectStore.Backend {
	case config.ObjectStoreMemory:
		return objectstore.NewMemory(), nil
	case config.ObjectStoreGCS:
		return objectstore.NewGCS(ctx, cfg.ObjectStore.GCSBucket, cfg.ObjectStore.GCSPrefix, cfg.ObjectStore.GCSCredentialsFile)
	default:
		return objectstore.OpenBadger(objectstore.BadgerConfig{
			Path:       cfg.ObjectStore.BadgerPath,
			GCInterval: 10 * time.Minute,
			Logger:     logger,
		})
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return strings.Split(cfg.FrontendURL, ",")
}
