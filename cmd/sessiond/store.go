package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/carenest/sessionguard/internal/config"
	"github.com/carenest/sessionguard/store"
)

// openStore builds the configured adapter. The returned func releases any
// connection or embedded server it started.
func openStore(ctx context.Context, cfg *config.Config) (store.Adapter, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemory(), noop, nil

	case config.BackendFile:
		return store.NewFile(cfg.StorePath), noop, nil

	case config.BackendRedis, config.BackendMiniredis:
		addr := cfg.RedisAddr
		var mr *miniredis.Miniredis
		if cfg.StoreBackend == config.BackendMiniredis {
			var err error
			if mr, err = miniredis.Run(); err != nil {
				return nil, nil, err
			}
			addr = mr.Addr()
		}
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		closeFn := func() {
			_ = rdb.Close()
			if mr != nil {
				mr.Close()
			}
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		// an abandoned blob outlives the session by at most one max age
		return store.NewRedis(rdb, cfg.StoreKey, cfg.MaxAge), closeFn, nil

	case config.BackendSQLite, config.BackendPostgres:
		driver, dsn, dialect := "sqlite", cfg.StorePath, store.DialectSQLite
		if cfg.StoreBackend == config.BackendPostgres {
			driver, dsn, dialect = "pgx", cfg.SQLDSN, store.DialectPostgres
		}
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		if dialect == store.DialectSQLite {
			db.SetMaxOpenConns(1)
		}
		closeFn := func() { _ = db.Close() }

		s, err := store.NewSQL(db, store.SQLConfig{Dialect: dialect, Key: cfg.StoreKey})
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return s, closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
