package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rianphlox/n-vpn/internal/config"
)

// Open creates the store selected by cfg.
// A Redis server that is unreachable at startup is logged, not fatal; the
// client reconnects on the next write.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file backend requires a path")
		}
		return NewFile(cfg.Path), nil
	case config.BackendKeyring:
		return NewKeyring(cfg.KeyringService), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRedisTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis store not reachable yet", "addr", cfg.RedisAddr, "error", err)
		}
		return NewRedis(client, cfg.RedisKey), nil
	case config.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
