package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/shop-stock/internal/config"
	"github.com/rl1809/shop-stock/internal/port"
)

// OpenBackend connects the document collection selected by cfg.Backend. The
// returned close func releases the underlying connections.
func OpenBackend(ctx context.Context, cfg config.Config) (port.DocumentCollection, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		m := NewMemoryAdapter()
		return m, m.Close, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return NewRedisAdapter(rdb), rdb.Close, nil

	case config.BackendMySQL:
		a, err := OpenMySQL(ctx, cfg.MySQLDSN, cfg.PollInterval)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil

	case config.BackendSQLite:
		a, err := OpenSQLite(ctx, cfg.SQLitePath, cfg.PollInterval)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
