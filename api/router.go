package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/greeks/algorithm/finance"
	"github.com/wyfcoding/greeks/config"
	"github.com/wyfcoding/greeks/idgen"
	"github.com/wyfcoding/greeks/limiter"
	"github.com/wyfcoding/greeks/metrics"
	"github.com/wyfcoding/greeks/middleware"
	"github.com/wyfcoding/greeks/response"
	"github.com/wyfcoding/greeks/server"
)

const (
	healthPath   = "/healthz"
	maxBodyBytes = 64 << 10
)

// Deps 路由依赖。Metrics 为空时不采集 HTTP 指标也不暴露指标端点；
// Limiter 为空且开启限流时按 RateLimit.Backend 使用本地令牌桶。
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	IDGen   idgen.Generator
	Limiter limiter.Limiter
	Health  func() error
}

// NewRouter 按配置组装中间件与路由。
func NewRouter(cfg *config.Config, calc *finance.BlackScholesCalculator, deps Deps) (*gin.Engine, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.IDGen == nil {
		gen, err := idgen.NewGenerator(idgen.Config{MachineID: cfg.Server.MachineID})
		if err != nil {
			return nil, err
		}
		deps.IDGen = gen
	}

	mws := []gin.HandlerFunc{middleware.Recovery(deps.Logger)}
	if cfg.Tracing.Enabled {
		mws = append(mws, middleware.TracingMiddleware(cfg.Server.Name), middleware.TraceIDHeader())
	}
	mws = append(mws,
		middleware.RequestID(deps.IDGen),
		middleware.Logger(deps.Logger, healthPath, cfg.Metrics.Path),
	)
	if deps.Metrics != nil {
		mws = append(mws, middleware.HTTPMetricsMiddlewareWithOptions(deps.Metrics, middleware.MetricsOptions{
			SkipPaths: []string{healthPath, cfg.Metrics.Path},
		}))
	}
	mws = append(mws, middleware.MaxBodyBytes(maxBodyBytes), middleware.HTTPErrorHandler())

	engine := server.NewDefaultGinEngine(server.GinMode(cfg.Server.Environment), mws...)

	engine.GET(healthPath, func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				response.ErrorWithStatus(c, http.StatusServiceUnavailable, "unhealthy", err.Error())
				return
			}
		}
		response.SuccessWithRawData(c, gin.H{"status": "ok", "version": cfg.Version})
	})

	if deps.Metrics != nil && cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := engine.Group("/v1")
	if cfg.RateLimit.Enabled {
		switch {
		case deps.Limiter != nil:
			v1.Use(middleware.RateLimitMiddleware(deps.Limiter))
		case cfg.RateLimit.Backend == "global":
			v1.Use(middleware.NewGlobalRateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
		default:
			v1.Use(middleware.NewLocalRateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
		}
	}
	NewHandler(calc).Register(v1)

	return engine, nil
}
