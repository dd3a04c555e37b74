// Package xerrors 提供带错误码、上下文与堆栈的结构化错误，并支持 HTTP/gRPC 状态码映射。
package xerrors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorType 错误的大类
type ErrorType uint

const (
	ErrUnknown ErrorType = iota
	ErrInternal
	ErrInvalidArg
)

// Error 增强型错误结构
type Error struct {
	Type    ErrorType      `json:"type"`
	Code    int            `json:"code"`    // 业务自定义错误码
	Message string         `json:"message"` // 对外展示的友好消息
	Detail  string         `json:"detail"`  // 对内调试的详细信息
	Cause   error          `json:"-"`       // 原始错误
	Stack   []string       `json:"stack"`   // 堆栈追踪
	Context map[string]any `json:"context"` // 上下文数据 (字段名、取值等)
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %d: %s (Cause: %v)", e.Type.String(), e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %d: %s", e.Type.String(), e.Code, e.Message)
}

// Unwrap 实现 Go 1.13 解包接口
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误大类与错误码判等，使 Clone 出的实例仍能与哨兵错误匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

func (t ErrorType) String() string {
	switch t {
	case ErrInternal:
		return "Internal"
	case ErrInvalidArg:
		return "InvalidArg"
	default:
		return "Unknown"
	}
}

// New 创建新错误并自动捕获堆栈
func New(errType ErrorType, code int, message string, detail string, cause error) *Error {
	e := &Error{
		Type:    errType,
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
		Context: make(map[string]any),
	}
	e.captureStack()
	return e
}

// captureStack 捕获当前调用栈 (深度限制 10 层)
func (e *Error) captureStack() {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // 跳过 captureStack, New/Clone 和上层构造函数
	frames := runtime.CallersFrames(pcs[:n])

	e.Stack = e.Stack[:0]
	for {
		frame, more := frames.Next()
		e.Stack = append(e.Stack, fmt.Sprintf("%s:%d (%s)", frame.File, frame.Line, frame.Function))
		if !more || len(e.Stack) >= depth {
			break
		}
	}
}

// Clone 以哨兵错误为模板生成独立实例，重新捕获堆栈，上下文互不共享。
func (e *Error) Clone() *Error {
	c := &Error{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Detail:  e.Detail,
		Cause:   e.Cause,
		Context: make(map[string]any, len(e.Context)),
	}
	maps.Copy(c.Context, e.Context)
	c.captureStack()
	return c
}

// --- 链式 API ---

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Field 返回上下文中记录的出错字段名，没有则为空串。
func (e *Error) Field() string {
	if f, ok := e.Context["field"].(string); ok {
		return f
	}
	return ""
}

// --- 快捷构造工具 ---

func Internal(msg string, cause error) *Error {
	return New(ErrInternal, 500, msg, "", cause)
}

func InvalidArg(msg string) *Error {
	return New(ErrInvalidArg, 400, msg, "", nil)
}

// Wrap 包装现有错误并捕获堆栈
func Wrap(err error, errType ErrorType, msg string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := FromError(err); ok {
		w := e.Clone()
		w.Cause = err
		w.Message = msg
		return w
	}
	code := http.StatusInternalServerError
	if errType == ErrInvalidArg {
		code = http.StatusBadRequest
	}
	return New(errType, code, msg, "", err)
}

// IsInvalidArgument 判断错误链中是否包含参数校验类错误。
func IsInvalidArgument(err error) bool {
	e, ok := FromError(err)
	return ok && e.Type == ErrInvalidArg
}

// --- 协议转换 ---

// HTTPStatus 自动映射 HTTP 状态码
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrInvalidArg:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode 自动映射 gRPC 状态码
func (e *Error) GRPCCode() codes.Code {
	switch e.Type {
	case ErrInvalidArg:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// ToGRPCStatus 将 Error 转换为 gRPC Status
func (e *Error) ToGRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Message)
}

// FromError 沿错误链查找 *Error
func FromError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
