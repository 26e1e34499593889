package store

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedis runs against a real server when N_VPN_TEST_REDIS_ADDR is set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("N_VPN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("N_VPN_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	key := "n-vpn-test:" + t.Name()
	require.NoError(t, client.Del(context.Background(), key).Err())
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })

	s := NewRedis(client, key)
	defer func() { _ = s.Close() }()

	exerciseStore(t, s)

	fields, err := client.HGetAll(context.Background(), key).Result()
	require.NoError(t, err)
	assert.Len(t, fields, 5)
	assert.Equal(t, "0", fields[KeyUploadBytes])
}

func TestParseFields(t *testing.T) {
	fields := map[string]string{
		KeyUploadBytes:      "42",
		KeySessionStartTime: "1767225600000",
		KeyDownloadBytes:    "not-a-number",
	}

	n, err := parseUint(fields, KeyUploadBytes)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	n, err = parseUint(fields, KeyTotalConnectedTime)
	require.NoError(t, err)
	assert.Zero(t, n, "missing fields default to zero")

	ms, err := parseInt(fields, KeySessionStartTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1767225600000), ms)

	_, err = parseUint(fields, KeyDownloadBytes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid download_bytes")
}
