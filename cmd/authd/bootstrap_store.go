package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	config "github.com/NordCoder/authd/internal/config/authd"
	domainauth "github.com/NordCoder/authd/internal/domain/auth"
	"github.com/NordCoder/authd/internal/domain/user"
	"github.com/NordCoder/authd/internal/obs"
	boltrepo "github.com/NordCoder/authd/internal/repository/bolt"
	"github.com/NordCoder/authd/internal/repository/memory"
	pg "github.com/NordCoder/authd/internal/repository/postgres"
	rds "github.com/NordCoder/authd/internal/repository/redis"
)

// storage is what the selected driver provides. db is set only for postgres, which is the one
// backend able to commit revocations and outbox rows together.
type storage struct {
	refresh domainauth.RefreshStore
	users   user.Repo
	db      *pg.DB
	health  []obs.HealthCheck
	close   func()
}

func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	log := logger.With(zap.String("store", cfg.Store.Driver))
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := pg.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("postgres ready")
		return &storage{
			refresh: pg.NewRefreshTokenRepo(db),
			users:   pg.NewUserRepo(db),
			db:      db,
			health:  []obs.HealthCheck{{Name: "postgres", Check: db.Ping}},
			close:   db.Close,
		}, nil

	case config.DriverRedis:
		// Users live in postgres; redis only holds refresh records.
		db, err := pg.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		rdb, err := rds.NewClient(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return nil, err
		}
		rs := rds.NewRefreshStore(rdb, cfg.Redis.Prefix, cfg.Auth.Leeway)
		log.Info("redis ready", zap.String("addr", cfg.Redis.Addr))
		return &storage{
			refresh: rs,
			users:   pg.NewUserRepo(db),
			health: []obs.HealthCheck{
				{Name: "postgres", Check: db.Ping},
				{Name: "redis", Check: rs.Ping},
			},
			close: func() {
				_ = rdb.Close()
				db.Close()
			},
		}, nil

	case config.DriverBolt:
		bdb, err := boltrepo.Open(cfg.Bolt.Path, cfg.Bolt.OpenTimeout)
		if err != nil {
			return nil, err
		}
		log.Info("bolt ready", zap.String("path", cfg.Bolt.Path))
		return &storage{
			refresh: boltrepo.NewRefreshStore(bdb),
			users:   boltrepo.NewUserRepo(bdb),
			health:  []obs.HealthCheck{{Name: "bolt", Check: bdb.Ping}},
			close:   func() { _ = bdb.Close() },
		}, nil

	case config.DriverMemory:
		log.Warn("in-memory store: sessions are lost on restart")
		return &storage{
			refresh: memory.NewRefreshStore(),
			users:   memory.NewUserRepo(),
			close:   func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
