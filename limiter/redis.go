package limiter

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "greeks:ratelimit:"

// slidingWindowScript 先清理过期记录再计数，仅在未超限时写入当前请求，被拒绝的请求不计入窗口。
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, 0, start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, ARGV[5])
		redis.call('PEXPIRE', key, ttl)
		return 1
	end
	return 0
`)

// RedisLimiter 基于 Redis 有序集合的滑动窗口限流器，多实例共享限流状态。
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
}

// NewRedisLimiter 创建 RedisLimiter。limit 为 window 内允许的最大请求数。
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow 在 Lua 脚本中原子地完成滑动窗口判定。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - l.window.Nanoseconds()
	// 成员带随机后缀，同一纳秒内多实例的请求不会合并为一条。
	member := strconv.FormatInt(now, 10) + "_" + strconv.FormatUint(rand.Uint64(), 36)
	ttl := max(l.window.Milliseconds()*2, 1)

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{redisKeyPrefix + key},
		now, windowStart, l.limit, ttl, member,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
