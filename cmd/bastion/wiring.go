package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/okian/bastion/internal/adapters/broadcast"
	"github.com/okian/bastion/internal/adapters/engine"
	"github.com/okian/bastion/internal/adapters/http/api"
	"github.com/okian/bastion/internal/adapters/http/swagger"
	"github.com/okian/bastion/internal/adapters/repository"
	service "github.com/okian/bastion/internal/app"
	"github.com/okian/bastion/internal/config"
	"github.com/okian/bastion/internal/domain/reconciler"
	"github.com/okian/bastion/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

// app holds the assembled process and what must be released on exit.
type app struct {
	svc     *service.Service
	handler http.Handler
	closers []func() error
	logger  logger.Logger
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn(ctx, "error releasing resource", logger.Error(err))
		}
	}
}

// assemble builds every component from cfg without starting the service.
func assemble(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	a := &app{logger: log}

	ratings, db, err := openRatingStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if db != nil {
		a.closers = append(a.closers, db.Close)
	}

	hub := broadcast.NewHub(broadcast.WithLogger(log.Named("broadcast")))
	publisher, rdb, err := openPublisher(ctx, cfg, hub, log)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
	}

	eng := engine.NewClient(cfg.EngineURL,
		engine.WithTimeout(cfg.EngineTimeout()),
		engine.WithLogger(log.Named("engine")))
	a.closers = append(a.closers, func() error { eng.Close(); return nil })

	a.svc = service.New(eng,
		service.WithLogger(log.Named("service")),
		service.WithRatingStore(ratings),
		service.WithPublisher(publisher),
		service.WithPollInterval(cfg.PollInterval()),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithSettleRetry(cfg.SettleMaxAttempts, 0),
	)
	a.handler = newHandler(cfg, a.svc, hub, log)
	return a, nil
}

// openRatingStore returns the configured rating backend and, for sqlite, the
// database to close on exit.
func openRatingStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.RatingStore, *sql.DB, error) {
	switch cfg.RatingStore {
	case config.StoreSQLite:
		db, err := repository.OpenSQLite(ctx, cfg.SQLitePath, log.Named("sqlite"))
		if err != nil {
			return nil, nil, fmt.Errorf("open rating store: %w", err)
		}
		return repository.NewSQLiteRatingStore(db, repository.WithLogger(log.Named("ratings"))), db, nil
	default:
		return repository.NewMemoryRatingStore(), nil, nil
	}
}

// openPublisher fans phase changes out to local subscribers and, when
// configured, to redis.
func openPublisher(ctx context.Context, cfg *config.Config, hub *broadcast.Hub, log logger.Logger) (reconciler.Publisher, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		return hub, nil, nil
	}
	rdb, err := broadcast.ConnectRedis(ctx, broadcast.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log.Named("redis"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return broadcast.Multi{hub, broadcast.NewRedisPublisher(rdb)}, rdb, nil
}

// newHandler builds the router with docs and wraps it with CORS.
func newHandler(cfg *config.Config, svc *service.Service, hub *broadcast.Hub, log logger.Logger) http.Handler {
	r := api.NewServer(svc,
		api.WithHub(hub),
		api.WithOrigins(cfg.CORSOrigins),
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		api.WithLogger(log.Named("api")),
	).Routes()
	swagger.Register(r)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}
