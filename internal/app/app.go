// Package app wires configuration, stores and services shared by the API
// server and duelctl.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/duelarena/backend/internal/cache"
	"github.com/duelarena/backend/internal/config"
	"github.com/duelarena/backend/internal/ledger"
	"github.com/duelarena/backend/internal/repository"
	"github.com/duelarena/backend/internal/services"
)

type App struct {
	Config *config.Config
	Logger *logrus.Logger
	Pool   *pgxpool.Pool
	Redis  *redis.Client

	Accounts   *repository.AccountRepo
	MatchRepo  *repository.MatchRepo
	LedgerRepo *ledger.Repository
	Store      services.QueueStore

	Escrow     *services.EscrowService
	Settlement *services.SettlementService
	Queue      *services.QueueService
	Ledger     ledger.Service
}

// NewLogger builds the JSON logrus logger at the configured level.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("unknown LOG_LEVEL, using info")
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// New connects to Postgres (and Redis when QUEUE_BACKEND=redis), applies the
// schema and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot reach PostgreSQL: %w", err)
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Accounts:   repository.NewAccountRepo(pool),
		MatchRepo:  repository.NewMatchRepo(pool),
		LedgerRepo: ledger.NewRepository(pool),
	}

	switch cfg.QueueBackend {
	case config.QueueBackendRedis:
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.Redis = rdb
		a.Store = cache.NewRedisQueue(rdb, "")
	case config.QueueBackendMemory:
		a.Store = repository.NewMemoryQueue()
	default:
		a.Store = repository.NewQueueRepo(pool)
	}
	logger.WithField("backend", cfg.QueueBackend).Info("queue store ready")

	log := logger.WithField("component", "duel")
	a.Escrow = services.NewEscrowService(a.Accounts, a.LedgerRepo, services.SafetyBeltFromConfig(cfg.Duel))
	a.Settlement = services.NewSettlementService(pool, a.MatchRepo, a.Escrow, cfg.Duel, log)
	a.Queue = services.NewQueueService(a.Store, a.Accounts, a.Settlement, cfg.Duel, log)
	a.Ledger = ledger.NewService(a.LedgerRepo, a.Accounts, pool, a.Escrow)
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.Pool.Close()
}
