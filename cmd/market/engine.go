package main

import (
	"context"

	"campus-market/internal/clock"
	"campus-market/internal/config"
	"campus-market/internal/database"
	"campus-market/internal/infrastructure/catalog"
	"campus-market/internal/infrastructure/keylock"
	"campus-market/internal/infrastructure/ratelimit"
	"campus-market/internal/repo"
	"campus-market/internal/repo/memory"
	"campus-market/internal/service"
	"campus-market/internal/transport/httpapi"
	"campus-market/internal/worker"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// engine is the wired set of services behind one store.
type engine struct {
	dispatcher *worker.Dispatcher
	orders     service.OrderService
	tasks      service.TaskService
	points     service.PointsService
	trust      service.TrustService
	audit      service.AuditService
	health     httpapi.HealthFunc
	close      func()
}

func loadConfig(c *cli.Context) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, cfg.NewLogger(), nil
}

func newEngine(ctx context.Context, cfg config.Config, log *logrus.Logger) (*engine, error) {
	var (
		store   repo.Store
		cat     catalog.Catalog
		health  httpapi.HealthFunc
		closeFn = func() {}
	)

	switch cfg.Store {
	case config.StorePostgres:
		db, err := database.New(ctx, cfg.DB, log)
		if err != nil {
			return nil, errors.Wrap(err, "connect store")
		}
		if err := database.Migrate(db.DB(), database.Up, log); err != nil {
			_ = db.Close()
			return nil, err
		}
		store = repo.NewPostgresStore(db.DB())
		cat = catalog.NewPostgres(db.DB())
		health = db.Health
		closeFn = func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("close database")
			}
		}
	default:
		store = memory.NewStore()
		cat = catalog.NewMemory()
		log.Warn("using in-memory store, state is lost on exit")
	}

	clk := clock.System()
	dispatcher := worker.NewDispatcher(log, cfg.EffectOptions())
	points := service.NewPointsService(store.Ledger, clk, log)
	trust := service.NewTrustService(store.Trust, clk, log)
	audit := service.NewAuditService(store.Audit)
	effects := service.NewSideEffects(dispatcher, cat, points, trust, audit, clk, log)
	limiter := ratelimit.New(clk)

	return &engine{
		dispatcher: dispatcher,
		orders:     service.NewOrderService(store, effects, limiter, keylock.New(), clk, cfg.OrderPolicy(), log),
		tasks:      service.NewTaskService(store, effects, limiter, clk, cfg.TaskPolicy(), log),
		points:     points,
		trust:      trust,
		audit:      audit,
		health:     health,
		close:      closeFn,
	}, nil
}
