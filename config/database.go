package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ConnectDB opens a pool and pings it, retrying with exponential backoff while the
// database comes up.
func ConnectDB(ctx context.Context, db DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(db.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = db.MaxConns
	poolCfg.MinConns = db.MinConns
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	const maxRetries = 5
	delay := 2 * time.Second

	for i := 1; i <= maxRetries; i++ {
		logger.Info("connecting to database",
			zap.String("database", db.DBName),
			zap.Int("attempt", i))

		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, connErr := pgxpool.NewWithConfig(attemptCtx, poolCfg)
		if connErr == nil {
			if connErr = pool.Ping(attemptCtx); connErr == nil {
				cancel()
				logger.Info("connected to database", zap.String("database", db.DBName))
				return pool, nil
			}
			pool.Close()
		}
		cancel()
		err = connErr

		logger.Warn("database connection failed",
			zap.String("database", db.DBName),
			zap.Int("attempt", i),
			zap.Error(err))

		if i < maxRetries {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to database %s after %d attempts: %w", db.DBName, maxRetries, err)
}
