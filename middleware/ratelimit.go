package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/wyfcoding/greeks/contextx"
	"github.com/wyfcoding/greeks/limiter"
	"github.com/wyfcoding/greeks/response"
)

// RateLimitMiddleware 构造一个通用的 Gin 限流中间件，以客户端 IP 作为限流标识。
// 优先使用 RequestID 中间件写入 Context 的 IP。
func RateLimitMiddleware(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := contextx.GetIP(c.Request.Context())
		if key == "" {
			key = c.ClientIP()
		}

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			// 限流组件故障时放行，但必须记录告警日志。
			slog.ErrorContext(c.Request.Context(), "rate limiter internal error, fail-open applied", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "key", key, "path", c.Request.URL.Path)
			response.ErrorWithStatus(c, http.StatusTooManyRequests, "too many requests", "access rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// NewLocalRateLimitMiddleware 创建按客户端 IP 隔离的本地令牌桶限流中间件。
// limit: 每秒允许的请求数; burst: 允许的突发请求数。
func NewLocalRateLimitMiddleware(limit float64, burst int) gin.HandlerFunc {
	return RateLimitMiddleware(limiter.NewKeyedLimiter(rate.Limit(limit), burst, 0))
}

// NewGlobalRateLimitMiddleware 创建所有客户端共享一个令牌桶的本地限流中间件。
func NewGlobalRateLimitMiddleware(limit float64, burst int) gin.HandlerFunc {
	return RateLimitMiddleware(limiter.NewLocalLimiter(rate.Limit(limit), burst))
}
