// Package logging 提供了统一的结构化日志（slog）封装，支持日志切割、多目标输出与 OpenTelemetry 追踪上下文注入。
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace" // OpenTelemetry追踪
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wyfcoding/greeks/contextx"
)

var (
	// defaultLogger 是全局默认的Logger实例，采用单例模式。
	defaultLogger *Logger
	// once 用于确保InitLogger函数只被执行一次。
	once sync.Once
	// level 全局共享的动态日志级别，配置热更新时通过 SetLevel 修改。
	level = new(slog.LevelVar)
)

// Config 定义日志配置
type Config struct {
	Service    string
	Module     string
	Level      string
	Format     string // json 或 text
	Output     string // stdout 或 stderr，默认 stderr
	File       string // 日志文件路径，非空时同时写入文件
	MaxSize    int    // 每个日志文件最大尺寸 (MB)
	MaxBackups int    // 保留旧日志文件的最大个数
	MaxAge     int    // 保留旧日志文件的最大天数
	Compress   bool   // 是否压缩旧日志
}

// Logger 封装 `*slog.Logger`，并携带服务名和模块名。
type Logger struct {
	*slog.Logger
	Service string // 服务名称
	Module  string // 模块名称

	closer io.Closer
}

// TraceHandler 是一个 `slog.Handler` 装饰器，从 `context.Context` 中提取 `trace_id`、`span_id` 与 `request_id` 注入日志记录。
type TraceHandler struct {
	slog.Handler
}

// Handle 在处理日志记录之前尝试从上下文获取 SpanContext，有效时追加追踪属性。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	if rid := contextx.GetRequestID(ctx); rid != "" {
		r.AddAttrs(slog.String("request_id", rid))
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保持装饰器不丢失。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup 保持装饰器不丢失。
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 将字符串级别转换为 slog.Level，无法识别时返回 Info。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 动态调整所有由本包创建的 Logger 的级别。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// Level 返回当前全局日志级别。
func Level() slog.Level {
	return level.Level()
}

func newHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "timestamp"
			}
			return a
		},
	}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func consoleWriter(output string) io.Writer {
	if strings.EqualFold(output, "stdout") {
		return os.Stdout
	}
	return os.Stderr
}

// NewFromConfig 根据配置创建 Logger。
// 配置了文件路径时同时写控制台与文件，文件经 lumberjack 切割，始终使用 JSON 格式。
func NewFromConfig(cfg Config) *Logger {
	return newWithWriter(cfg, consoleWriter(cfg.Output))
}

func newWithWriter(cfg Config, console io.Writer) *Logger {
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}

	handler := newHandler(console, cfg.Format)
	var closer io.Closer

	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		handler = newMultiHandler(handler, newHandler(fileWriter, "json"))
		closer = fileWriter
	}

	logger := slog.New(&TraceHandler{Handler: handler}).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)

	return &Logger{
		Logger:  logger,
		Service: cfg.Service,
		Module:  cfg.Module,
		closer:  closer,
	}
}

// Close 关闭文件输出，未配置文件时为空操作。
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// NewLogger 以简单参数创建 logger。
func NewLogger(service, module string, lvl ...string) *Logger {
	l := "info"
	if len(lvl) > 0 {
		l = lvl[0]
	}
	return NewFromConfig(Config{
		Service: service,
		Module:  module,
		Level:   l,
	})
}

// InitLogger 以配置初始化全局默认日志记录器并设为 slog 默认值，仅首次调用生效。
func InitLogger(cfg Config) *Logger {
	once.Do(func() {
		defaultLogger = NewFromConfig(cfg)
		slog.SetDefault(defaultLogger.Logger)
	})
	return defaultLogger
}

// Default 返回默认日志记录器实例
func Default() *Logger {
	if defaultLogger == nil {
		return InitLogger(Config{Service: "greeks", Module: "default", Level: "info"})
	}
	return defaultLogger
}

// Info 记录 Info 级别日志
func Info(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

// Warn 记录 Warn 级别日志
func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

// Error 记录 Error 级别日志
func Error(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// Debug 记录 Debug 级别日志
func Debug(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(ctx, msg, args...)
}

// LogDuration 记录操作耗时
func LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		Info(ctx, fmt.Sprintf("%s finished", operation), logArgs...)
	}
}
