// Package app 提供了应用程序的构建和管理功能，包括服务的启动、停止和资源清理。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/greeks/server"
)

// App 是应用程序的核心容器，负责管理服务器的生命周期、信号处理与资源清理。
type App struct {
	name   string
	logger *slog.Logger
	opts   options

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New 创建一个新的应用程序实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM}}
	for _, opt := range opts {
		opt(&o)
	}
	return &App{
		name:   name,
		logger: logger,
		opts:   o,
	}
}

// Run 启动应用程序并阻塞，直到收到退出信号或任一服务器异常退出。
func (a *App) Run() error {
	return a.RunContext(context.Background())
}

// RunContext 与 Run 相同，但 ctx 被取消时同样触发优雅关闭。
// 所有服务器在同一个 errgroup 中运行，任一失败都会取消其余服务器；清理函数按注册的逆序执行。
func (a *App) RunContext(ctx context.Context) error {
	a.printBanner()

	if len(a.opts.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, a.opts.signals...)
		defer stop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.opts.servers {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("server exited with error", "name", a.name, "error", err)
	} else {
		err = nil
	}

	a.logger.Info("shutting down application", "name", a.name)
	for i := len(a.opts.cleanups) - 1; i >= 0; i-- {
		a.opts.cleanups[i]()
	}

	if err == nil {
		a.logger.Info("application shut down gracefully", "name", a.name)
	}
	return err
}

// Stop 主动触发关闭，仅在 Run 期间有效。
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Health 依次执行注册的健康检查，返回所有失败项。
func (a *App) Health() error {
	var errs []error
	for _, check := range a.opts.healthCheckers {
		if err := check(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) printBanner() {
	const banner = `
   ____                _
  / ___|_ __ ___  ___| | _____
 | |  _| '__/ _ \/ _ \ |/ / __|
 | |_| | | |  __/  __/   <\__ \
  \____|_|  \___|\___|_|\_\___/
`
	a.logger.Debug(banner)
	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid())
}

var _ server.Server = (*funcServer)(nil)

// funcServer 将一对函数适配为 server.Server。
type funcServer struct {
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (f funcServer) Start(ctx context.Context) error { return f.start(ctx) }

func (f funcServer) Stop(ctx context.Context) error {
	if f.stop == nil {
		return nil
	}
	return f.stop(ctx)
}
