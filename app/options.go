package app

import (
	"context"
	"os"

	"github.com/wyfcoding/greeks/server"
)

// Option 是一个函数类型，用于配置应用程序选项。
type Option func(*options)

type options struct {
	servers        []server.Server
	cleanups       []func()
	healthCheckers []func() error
	signals        []os.Signal
}

// WithHealthChecker 注册一个自定义健康检查函数，用于服务的就绪状态检查。
func WithHealthChecker(checker func() error) Option {
	return func(o *options) {
		if checker != nil {
			o.healthCheckers = append(o.healthCheckers, checker)
		}
	}
}

// WithServer 添加一个或多个 `server.Server` 实例，随应用启动并在关闭时停止。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithWorker 将一个阻塞函数作为服务器运行，ctx 取消时应返回。
func WithWorker(run func(ctx context.Context) error) Option {
	return func(o *options) {
		o.servers = append(o.servers, funcServer{start: run})
	}
}

// WithCleanup 添加关闭时执行的清理函数，例如刷新追踪数据、关闭日志文件。
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		if cleanup != nil {
			o.cleanups = append(o.cleanups, cleanup)
		}
	}
}

// WithSignals 覆盖默认监听的退出信号 (SIGINT, SIGTERM)。
func WithSignals(signals ...os.Signal) Option {
	return func(o *options) {
		o.signals = signals
	}
}
