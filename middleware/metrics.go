// Package middleware 提供了 Gin 的通用中间件实现。
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/greeks/metrics"
)

// MetricsOptions 定义指标中间件的可选参数。
type MetricsOptions struct {
	SkipPaths []string
}

// HTTPMetricsMiddleware 返回一个用于采集 HTTP 请求指标的 Gin 中间件。
func HTTPMetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return HTTPMetricsMiddlewareWithOptions(m, MetricsOptions{})
}

// HTTPMetricsMiddlewareWithOptions 返回一个可配置的 HTTP 指标采集中间件。
// 路径标签使用路由模板，未匹配路由统一记为 unmatched，避免标签基数膨胀。
func HTTPMetricsMiddlewareWithOptions(m *metrics.Metrics, opts MetricsOptions) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, path := range opts.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		method := c.Request.Method
		m.HTTPInFlight.WithLabelValues(method, path).Inc()
		defer m.HTTPInFlight.WithLabelValues(method, path).Dec()

		start := time.Now()

		c.Next()

		m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
