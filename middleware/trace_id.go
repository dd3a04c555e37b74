package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/greeks/tracing"
)

// HeaderXTraceID 定义 Trace ID 响应头名称。
const HeaderXTraceID = "X-Trace-ID"

// TraceIDHeader 返回一个 Gin 中间件，用于注入 Trace ID 响应头。须注册在 TracingMiddleware 之后。
func TraceIDHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if traceID := tracing.GetTraceID(c.Request.Context()); traceID != "" {
			c.Header(HeaderXTraceID, traceID)
		}
		c.Next()
	}
}
