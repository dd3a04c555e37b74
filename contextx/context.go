// Package contextx 提供在 context.Context 中安全注入与提取请求级信息的工具函数。
// 使用私有类型作为 Key，防止跨包冲突。
package contextx

import "context"

type contextKey int

const (
	RequestIDKey contextKey = iota // 请求唯一标识 Key。
	IPKey                          // 客户端 IP Key。
)

// WithRequestID 将请求 ID 注入到 Context 中。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID 从 Context 中提取请求 ID。
func GetRequestID(ctx context.Context) string {
	if val, ok := ctx.Value(RequestIDKey).(string); ok {
		return val
	}
	return ""
}

// WithIP 将客户端 IP 注入到 Context 中。
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, IPKey, ip)
}

// GetIP 从 Context 中提取客户端 IP。
func GetIP(ctx context.Context) string {
	if val, ok := ctx.Value(IPKey).(string); ok {
		return val
	}
	return ""
}
