package main

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/wyfcoding/greeks/algorithm/finance"
	"github.com/wyfcoding/greeks/api"
	"github.com/wyfcoding/greeks/app"
	"github.com/wyfcoding/greeks/config"
	"github.com/wyfcoding/greeks/idgen"
	"github.com/wyfcoding/greeks/limiter"
	"github.com/wyfcoding/greeks/logging"
	"github.com/wyfcoding/greeks/metrics"
	"github.com/wyfcoding/greeks/server"
	"github.com/wyfcoding/greeks/tracing"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "run the HTTP API",
	Action: serveAction,
}

func serveAction(c *cli.Context) error {
	loader, cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	lg := logging.InitLogger(cfg.LoggingConfig("server"))
	opts := []app.Option{app.WithCleanup(func() { _ = lg.Close() })}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(c.Context, tracing.Config{
			ServiceName:  cfg.Server.Name,
			Endpoint:     cfg.Tracing.Endpoint,
			SamplerRatio: cfg.Tracing.SamplerRatio,
		})
		if err != nil {
			return cli.Exit(err.Error(), exitConfig)
		}
		opts = append(opts, app.WithCleanup(func() {
			if err := shutdown(context.Background()); err != nil {
				lg.Error("tracer shutdown failed", "error", err)
			}
		}))
	}

	m := metrics.NewMetrics()
	m.RegisterBuildInfo(cfg.Server.Name, version)

	gen, err := idgen.NewGenerator(idgen.Config{MachineID: cfg.Server.MachineID})
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	var rl limiter.Limiter
	if cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		rl = limiter.NewRedisLimiter(client, cfg.RateLimit.Burst, cfg.RateLimit.Window)
		opts = append(opts,
			app.WithHealthChecker(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				return client.Ping(ctx).Err()
			}),
			app.WithCleanup(func() { _ = client.Close() }),
		)
	}

	calc := finance.NewBlackScholesCalculator(finance.WithLogger(lg.Logger), finance.WithRecorder(m))

	var application *app.App
	engine, err := api.NewRouter(cfg, calc, api.Deps{
		Logger:  lg.Logger,
		Metrics: m,
		IDGen:   gen,
		Limiter: rl,
		Health:  func() error { return application.Health() },
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	addr := net.JoinHostPort(cfg.Server.HTTP.Addr, strconv.Itoa(cfg.Server.HTTP.Port))
	srv := server.NewGinServer(engine, addr, lg.Logger, server.GinOptions{
		ReadTimeout:       cfg.Server.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:       cfg.Server.HTTP.IdleTimeout,
	})
	opts = append(opts, app.WithServer(srv))

	if c.IsSet(flagConfig) {
		loader.RegisterReloadHook(func(next *config.Config) {
			lg.Info("config reloaded", "log_level", next.Log.Level, "version", next.Version)
		})
		loader.Watch()
	}

	application = app.New(cfg.Server.Name, lg.Logger, opts...)
	return application.RunContext(c.Context)
}
