package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rparedes/callbid/internal/shared/config"
)

var (
	dbPool *pgxpool.Pool
	once   sync.Once
)

// GetPostgresPool returns a singleton *pgxpool.Pool built from the loaded
// configuration. The pool is pinged before being handed out.
func GetPostgresPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	var err error
	once.Do(func() {
		poolCfg, cfgErr := pgxpool.ParseConfig(cfg.PostgresDSN())
		if cfgErr != nil {
			err = fmt.Errorf("failed to parse database config: %w", cfgErr)
			return
		}

		pool, connErr := pgxpool.NewWithConfig(ctx, poolCfg)
		if connErr != nil {
			err = fmt.Errorf("unable to connect to DB: %w", connErr)
			return
		}
		dbPool = pool
	})
	if err != nil {
		return nil, err
	}

	if dbPool == nil {
		return nil, errors.New("database pool was not initialized")
	}
	if pingErr := dbPool.Ping(ctx); pingErr != nil {
		return nil, fmt.Errorf("database pool ping failed: %w", pingErr)
	}
	return dbPool, nil
}
