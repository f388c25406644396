package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisDeduplicator_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("FirstThenReplay", func(t *testing.T) {
		mr, client := setupRedis(t)
		d := NewRedisDeduplicator(client, time.Hour)

		first, err := d.Claim(ctx, "evt_1")
		require.NoError(t, err)
		assert.True(t, first)

		again, err := d.Claim(ctx, "evt_1")
		require.NoError(t, err)
		assert.False(t, again)

		assert.True(t, mr.Exists(keyPrefix+"evt_1"))
		assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"evt_1"))
	})

	t.Run("ExpiresAfterTTL", func(t *testing.T) {
		mr, client := setupRedis(t)
		d := NewRedisDeduplicator(client, time.Minute)

		_, err := d.Claim(ctx, "evt_2")
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)

		first, err := d.Claim(ctx, "evt_2")
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("Release", func(t *testing.T) {
		_, client := setupRedis(t)
		d := NewRedisDeduplicator(client, time.Hour)

		_, err := d.Claim(ctx, "evt_3")
		require.NoError(t, err)
		require.NoError(t, d.Release(ctx, "evt_3"))

		first, err := d.Claim(ctx, "evt_3")
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("RedisError", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		d := NewRedisDeduplicator(client, time.Hour)

		mock.ExpectSetNX(keyPrefix+"evt_4", "1", time.Hour).SetErr(errors.New("connection refused"))

		_, err := d.Claim(ctx, "evt_4")
		assert.EqualError(t, err, "connection refused")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNoopDeduplicator(t *testing.T) {
	var d NoopDeduplicator
	first, err := d.Claim(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = d.Claim(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.NoError(t, d.Release(context.Background(), "evt_1"))
}
