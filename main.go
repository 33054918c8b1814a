package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"todotracker/internal/middleware"
	"todotracker/internal/tasks"
)

func main() {
	logger := newLoggerFromEnv()
	slog.SetDefault(logger) // for third-party packages that use slog

	repo, cleanup, err := newRepoFromEnv()
	if err != nil {
		logger.Error("store_init_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

	shutdownTracing, err := initTracing()
	if err != nil {
		logger.Warn("tracing_init_error", slog.String("error", err.Error()))
	} else {
		defer shutdownTracing()
	}

	r := newRouter(repo, logger)

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("server_listen", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("server_error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newRouter wires the health endpoint, task routes, metrics exposition,
// and middleware stack
func newRouter(repo tasks.Repository, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// ---- Middleware stack (order matters a bit) ----
	// RequestID first so downstream can include it (logger, spans, etc.)
	r.Use(chimw.RequestID)

	// Panic recovery: never crash the server; returns 500 on panics
	r.Use(chimw.Recoverer)

	// Timeouts: cancel handlers that exceed this duration
	r.Use(chimw.Timeout(15 * time.Second))

	// CORS
	// Allow all origins, methods, and headers for a local single-user tool
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Use(middleware.RateLimitMiddleware(newLimiterFromEnv()))
	r.Use(middleware.AuthMiddleware(authConfigFromEnv()))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.TracingMiddleware)

	// Our structured request logger (includes req_id).
	r.Use(middleware.RequestLogger(logger))

	// ---- Routes ----

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Prometheus exposition
	r.Handle("/metrics", middleware.MetricsHandler())

	// task routes
	tasks.RegisterRoutes(r, repo)

	return r
}

// newRepoFromEnv picks the backend: DB_PATH set means the durable
// sqlite store (migrated on open), otherwise tasks live in memory for
// the lifetime of the process.
func newRepoFromEnv() (tasks.Repository, func(), error) {
	path := strings.TrimSpace(os.Getenv("DB_PATH"))
	if path == "" {
		return tasks.NewMemoryRepo(), func() {}, nil
	}

	dsn, err := tasks.SQLiteFileDSN(path)
	if err != nil {
		return nil, nil, err
	}
	repo, err := tasks.NewSQLiteRepo(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.ApplyMigrations(context.Background()); err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close() }, nil
}

func newLoggerFromEnv() *slog.Logger {
	level := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: l,
	})
	return slog.New(handler)
}

func newLimiterFromEnv() *rate.Limiter {
	rps, _ := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		burst = 1
	}
	return middleware.NewLimiter(rps, burst)
}

func authConfigFromEnv() middleware.AuthConfig {
	return middleware.AuthConfig{
		Mode:        middleware.AuthMode(strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))),
		APIKey:      os.Getenv("API_KEY"),
		BearerToken: os.Getenv("BEARER_TOKEN"),
		SkipPaths:   []string{"/health", "/metrics"},
	}
}

// initTracing installs a stdout span exporter when TRACE=stdout;
// otherwise spans stay on the default no-op provider.
func initTracing() (func(), error) {
	if strings.ToLower(os.Getenv("TRACE")) != "stdout" {
		return func() {}, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return func() {}, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}
