package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/s1natex/tasks-crud-api/internal/config"
	"github.com/s1natex/tasks-crud-api/internal/events"
	"github.com/s1natex/tasks-crud-api/internal/httpjson"
	"github.com/s1natex/tasks-crud-api/internal/logging"
	"github.com/s1natex/tasks-crud-api/internal/middleware"
	"github.com/s1natex/tasks-crud-api/internal/tasks"
	"github.com/s1natex/tasks-crud-api/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("server_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tasks-crud-api", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("TASKS_CONFIG"), "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()
	slog.SetDefault(logger) // for third-party packages that use slog

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		ServiceName:  cfg.Tracing.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	repo, closeRepo, err := newRepository(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeRepo()

	publisher, err := newPublisher(ctx, cfg.Events)
	if err != nil {
		return err
	}
	defer publisher.Close()

	manager := tasks.NewManager(repo, tasks.WithPublisher(publisher), tasks.WithLogger(logger))
	r, err := newRouter(manager, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen",
			slog.String("addr", cfg.Server.Addr),
			slog.String("store", cfg.Store.Driver),
			slog.String("events", cfg.Events.Driver),
			slog.String("auth", cfg.Auth.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_shutdown", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newRouter wires the health and metrics endpoints, task routes, and middleware stack
func newRouter(m *tasks.Manager, cfg *config.Config, logger *slog.Logger) (*chi.Mux, error) {
	authMode, err := middleware.ParseAuthMode(cfg.Auth.Mode)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// ---- Middleware stack (order matters a bit) ----
	// RequestID first so downstream can include it (logger, spans, etc.)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	// Panic recovery: never crash the server; returns 500 on panics
	r.Use(chimw.Recoverer)

	// Timeouts: cancel handlers that exceed this duration
	r.Use(chimw.Timeout(15 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "traceparent"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Trace-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.RateLimitMiddleware(middleware.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))
	r.Use(middleware.AuthMiddleware(middleware.AuthConfig{
		Mode:        authMode,
		APIKey:      cfg.Auth.APIKey,
		BearerToken: cfg.Auth.BearerToken,
		SkipPaths:   []string{"/health", "/metrics"},
	}))

	// ---- Routes ----
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	tasks.RegisterRoutes(r, m)

	return r, nil
}

func newRepository(ctx context.Context, cfg config.StoreConfig) (tasks.Repository, func() error, error) {
	noClose := func() error { return nil }

	dsn := cfg.DSN
	switch cfg.Driver {
	case "memory":
		return tasks.NewInMemoryRepo(), noClose, nil
	case tasks.DriverSQLite:
		if dsn == "" {
			var err error
			if dsn, err = tasks.SQLiteFileDSN(cfg.SQLitePath); err != nil {
				return nil, nil, fmt.Errorf("sqlite path %s: %w", cfg.SQLitePath, err)
			}
		}
	case tasks.DriverMySQL, tasks.DriverPostgres:
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	repo, err := tasks.OpenSQLRepo(ctx, tasks.SQLConfig{
		Driver:          cfg.Driver,
		DSN:             dsn,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := repo.ApplyMigrations(ctx); err != nil {
		_ = repo.Close()
		return nil, nil, fmt.Errorf("migrate %s: %w", cfg.Driver, err)
	}
	return repo, repo.Close, nil
}

func newPublisher(ctx context.Context, cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Driver {
	case "none":
		return events.Noop{}, nil
	case "redis":
		p, err := events.NewRedisPublisher(ctx, events.RedisConfig{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "rabbitmq":
		p, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
