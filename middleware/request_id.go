package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/greeks/contextx"
	"github.com/wyfcoding/greeks/idgen"
)

// HeaderXRequestID 请求 ID 头。
const HeaderXRequestID = "X-Request-ID"

// RequestID 返回一个用于生成或传递请求 ID 的 Gin 中间件。
func RequestID(gen idgen.Generator) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = idgen.String(gen)
		}

		ctx := contextx.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(contextx.WithIP(ctx, c.ClientIP()))
		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}
