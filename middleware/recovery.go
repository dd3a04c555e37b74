package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/greeks/response"
)

// Recovery 结构化异常恢复中间件
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorContext(c.Request.Context(), "panic recovered",
					"error", err,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"query", c.Request.URL.RawQuery,
					"stack", string(debug.Stack()),
				)

				response.ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", "an unexpected error occurred")
				c.Abort()
			}
		}()
		c.Next()
	}
}
