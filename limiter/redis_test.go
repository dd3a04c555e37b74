package limiter

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实 Redis，通过 GREEKS_TEST_REDIS_ADDR 指定地址，未设置时跳过。
func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("GREEKS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GREEKS_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	key := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Cleanup(func() { client.Del(ctx, redisKeyPrefix+key) })

	l := NewRedisLimiter(client, 2, time.Minute)
	for range 2 {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

// 持续到达的被拒请求不应续期窗口，窗口滑过后重新放行。
func TestRedisLimiterRecoversUnderSustainedLoad(t *testing.T) {
	addr := os.Getenv("GREEKS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GREEKS_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	key := "sustained-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Cleanup(func() { client.Del(ctx, redisKeyPrefix+key) })

	const window = 400 * time.Millisecond
	l := NewRedisLimiter(client, 2, window)

	start := time.Now()
	for range 2 {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
	}

	for time.Since(start) < window-100*time.Millisecond {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
		time.Sleep(20 * time.Millisecond)
	}

	n, err := client.ZCard(ctx, redisKeyPrefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "rejected requests must not be recorded")

	time.Sleep(window + 100*time.Millisecond - time.Since(start))
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	ok, err := NewRedisLimiter(client, 1, time.Second).Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}
