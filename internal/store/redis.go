package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rianphlox/n-vpn/internal/traffic"
)

// DefaultRedisTimeout bounds every Redis round trip so a slow server cannot
// stall the refresh loop.
const DefaultRedisTimeout = 500 * time.Millisecond

// Redis stores the counters as fields of a single hash.
type Redis struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// Compile-time check that Redis implements Store.
var _ Store = (*Redis)(nil)

// NewRedis creates a Redis-backed store writing to the hash at key.
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = Namespace
	}
	return &Redis{
		client:  client,
		key:     key,
		timeout: DefaultRedisTimeout,
	}
}

// Load reads the counters hash.
func (r *Redis) Load() (traffic.Counters, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return traffic.Counters{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec record
	if rec.UploadBytes, err = parseUint(fields, KeyUploadBytes); err != nil {
		return traffic.Counters{}, err
	}
	if rec.DownloadBytes, err = parseUint(fields, KeyDownloadBytes); err != nil {
		return traffic.Counters{}, err
	}
	if rec.TotalConnectedTime, err = parseUint(fields, KeyTotalConnectedTime); err != nil {
		return traffic.Counters{}, err
	}
	if rec.SessionStartTime, err = parseInt(fields, KeySessionStartTime); err != nil {
		return traffic.Counters{}, err
	}
	if rec.LastUpdateTime, err = parseInt(fields, KeyLastUpdateTime); err != nil {
		return traffic.Counters{}, err
	}
	return rec.counters(), nil
}

// Save writes all five fields with a single HSET, which Redis applies atomically.
func (r *Redis) Save(c traffic.Counters) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	rec := toRecord(c)
	err := r.client.HSet(ctx, r.key,
		KeyUploadBytes, rec.UploadBytes,
		KeyDownloadBytes, rec.DownloadBytes,
		KeyTotalConnectedTime, rec.TotalConnectedTime,
		KeySessionStartTime, rec.SessionStartTime,
		KeyLastUpdateTime, rec.LastUpdateTime,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Clear resets the stored counters.
func (r *Redis) Clear(now time.Time) (traffic.Counters, error) {
	return clearWith(r, now)
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func parseUint(fields map[string]string, key string) (uint64, error) {
	v, ok := fields[key]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func parseInt(fields map[string]string, key string) (int64, error) {
	v, ok := fields[key]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
