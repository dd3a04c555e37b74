package server

import "context"

// Server 定义了由 app.App 统一管理生命周期的服务器契约。
type Server interface {
	// Start 阻塞运行，直到 ctx 被取消或服务异常退出。
	Start(ctx context.Context) error
	// Stop 优雅停止，等待进行中的请求完成。
	Stop(ctx context.Context) error
}
