package server

import (
	"github.com/gin-gonic/gin"
)

// NewDefaultGinEngine 创建一个不带默认中间件的 Gin 引擎。
// 由调用方负责决定中间件顺序与集合。
func NewDefaultGinEngine(mode string, middlewares ...gin.HandlerFunc) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(middlewares...)
	return engine
}

// GinMode 将运行环境映射为 Gin 运行模式。
func GinMode(environment string) string {
	switch environment {
	case "prod":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
