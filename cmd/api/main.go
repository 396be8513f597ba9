package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/duelarena/backend/internal/app"
	"github.com/duelarena/backend/internal/auth"
	"github.com/duelarena/backend/internal/config"
	"github.com/duelarena/backend/internal/dashboard"
	"github.com/duelarena/backend/internal/middleware"
	"github.com/duelarena/backend/internal/router"
	"github.com/duelarena/backend/internal/services"
	"github.com/duelarena/backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Startup failed. Ensure Postgres is running, e.g. make dev-up or docker-compose up -d")
	}
	defer a.Close()
	logger.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(a.Pool), nil)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create River migrator")
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		logger.WithError(err).Fatal("River migrate up failed")
	}
	logger.Info("River migrations applied")

	workers := river.NewWorkers()
	worker.Register(workers, a.Queue, logger)

	riverClient, err := river.NewClient[pgx.Tx](riverpgxv5.New(a.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 4},
		},
		Workers:      workers,
		PeriodicJobs: worker.PeriodicJobs(cfg.MatchmakeInterval, cfg.QueueSweepInterval),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create River client")
	}
	a.Queue.Kick = worker.KickFunc(riverClient)

	validator, err := services.NewValidator()
	if err != nil {
		logger.WithError(err).Fatal("Schema validator init failed")
	}

	authRepo := auth.NewRepository(a.Pool)
	authSvc := auth.NewService(authRepo, a.Escrow, cfg.JWTSecret, cfg.StartingCredits)
	authHandler := auth.NewHandler(authSvc, logger)
	dashHandler := dashboard.NewHandler(authSvc, a.Accounts, a.Settlement, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", router.New(authHandler, dashHandler))
	RegisterV1Routes(mux, a, authSvc, validator, logger)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(middleware.LogMiddleware(logger)(mux))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := riverClient.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return riverClient.Stop(stopCtx)
	})
	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}
	logger.Info("Server stopped")
}
