package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/circulation/internal/adapter/fsm"
	otelAdapter "github.com/neomorfeo/circulation/internal/adapter/otel"
	riverAdapter "github.com/neomorfeo/circulation/internal/adapter/river"
	"github.com/neomorfeo/circulation/internal/adapter/sqlstore"
	"github.com/neomorfeo/circulation/internal/app"
	"github.com/neomorfeo/circulation/internal/config"
	"github.com/neomorfeo/circulation/internal/domain"

	handler "github.com/neomorfeo/circulation/internal/adapter/http"
)

const (
	serviceName    = "circulation"
	serviceVersion = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	providers, err := otelAdapter.Setup(ctx, cfg.Otel)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	dialect, err := sqlstore.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return err
	}

	db, err := otelAdapter.OpenDB(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	store, err := sqlstore.NewFromDB(db, dialect, sqlstore.WithLogger(logger))
	if err != nil {
		db.Close()
		return fmt.Errorf("database: %w", err)
	}
	defer store.Close()

	publisher, stopQueue, err := newPublisher(ctx, store, logger)
	if err != nil {
		return err
	}
	defer stopQueue()

	// --- Application ---
	svc := app.NewCirculationService(
		otelAdapter.NewTracingStore(store),
		otelAdapter.NewTracingPublisher(publisher),
		fsm.NewReservationValidator(),
		fsm.NewLoanValidator(),
		app.WithPolicy(cfg.Policy),
		app.WithLogger(logger),
	)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, huma.DefaultConfig(serviceName, serviceVersion))
	handler.Register(api, svc)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("circulation listening", "port", cfg.Port, "store", string(dialect), "docs", "http://localhost:"+cfg.Port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("stopped")
	return nil
}

// newPublisher returns the change publisher for the store's dialect and a
// function that stops it. SQLite deployments queue changes in River; River
// has no driver here for Postgres, so those changes are logged.
func newPublisher(ctx context.Context, store *sqlstore.Store, logger *slog.Logger) (domain.EventPublisher, func(), error) {
	if store.Dialect() != sqlstore.SQLite {
		return &logPublisher{logger: logger}, func() {}, nil
	}

	client, err := riverAdapter.Setup(ctx, store.DB(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("river: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting river: %w", err)
	}

	stopQueue := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			logger.Error("river stop", "error", err)
		}
	}
	return riverAdapter.NewPublisher(client), stopQueue, nil
}

// logPublisher writes changes to the log instead of a queue.
type logPublisher struct {
	logger *slog.Logger
}

func (p *logPublisher) Publish(ctx context.Context, change domain.Change) error {
	p.logger.InfoContext(ctx, "change",
		"kind", change.Kind,
		"tenant_id", change.TenantID,
		"entity_id", change.EntityID,
		"version", change.Version,
	)
	return nil
}
