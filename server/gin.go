// Package server 提供了启动和管理 HTTP 服务器的封装。
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultShutdownTimeout = 5 * time.Second

// GinOptions 定义 http.Server 的超时参数，零值表示不限制。
type GinOptions struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// GinServer 封装了标准的 `http.Server`，专门用于运行 Gin 引擎，并提供了优雅的启动和关闭功能。
type GinServer struct {
	server          *http.Server
	addr            string
	logger          *slog.Logger
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewGinServer 创建一个新的 Gin 服务器实例。
func NewGinServer(engine *gin.Engine, addr string, logger *slog.Logger, opts GinOptions) *GinServer {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &GinServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
		},
		addr:            addr,
		logger:          logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}
}

// Start 启动 Gin HTTP 服务器。
// 这是一个阻塞操作，它会监听上下文的取消事件以触发优雅关闭。
func (s *GinServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("starting gin server", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("gin server stopping due to context cancellation")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Stop 优雅地停止 Gin 服务器，等待现有请求在超时时间内完成。
func (s *GinServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping gin server gracefully")
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Ready 在监听套接字建立后关闭。
func (s *GinServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr 返回实际监听地址，端口为 0 时可用于获取随机端口。Ready 之前返回配置地址。
func (s *GinServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}
