package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/afrix/afxledger/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OpenRedis connects the optional shared cache. Returns (nil, nil) when no URL
// is configured; callers treat a nil client as "no redis".
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		zap.L().Warn("redis URL not configured, running without shared cache")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("repository.OpenRedis: %w", err)
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 2 * time.Second
	opt.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("repository.OpenRedis: ping: %w", err)
	}

	zap.L().Info("connected to redis", zap.String("addr", opt.Addr))
	return client, nil
}

// CloseRedis closes client if it is set.
func CloseRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		zap.L().Error("closing redis", zap.Error(err))
	}
}
