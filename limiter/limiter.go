// Package limiter 提供基于令牌桶的本地限流器。
package limiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error) // 检查是否允许请求通过。
}

// LocalLimiter 是一个全局共享令牌桶的本地限流器，忽略 key。
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter 创建一个 LocalLimiter。
// r: 每秒生成的令牌数; b: 令牌桶容量，即允许的瞬时突发请求数。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{limiter: rate.NewLimiter(r, b)}
}

// Allow 尝试从令牌桶中获取一个令牌。
func (l *LocalLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.limiter.Allow(), nil
}

// KeyedLimiter 为每个 key (通常是客户端 IP) 维护独立的令牌桶。
type KeyedLimiter struct {
	mu      sync.Mutex
	r       rate.Limit
	b       int
	buckets map[string]*rate.Limiter
	maxKeys int
}

// NewKeyedLimiter 创建按 key 隔离的限流器。maxKeys 限制缓存的桶数量，超出后整体重置。
func NewKeyedLimiter(r rate.Limit, b, maxKeys int) *KeyedLimiter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &KeyedLimiter{
		r:       r,
		b:       b,
		buckets: make(map[string]*rate.Limiter),
		maxKeys: maxKeys,
	}
}

// Allow 检查 key 对应的令牌桶是否允许请求通过。
func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.buckets = make(map[string]*rate.Limiter)
		}
		bucket = rate.NewLimiter(l.r, l.b)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()
	return bucket.Allow(), nil
}
