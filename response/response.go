// Package response 提供了统一的 HTTP 响应封装，支持业务错误码映射及 gRPC 状态码转换。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wyfcoding/greeks/xerrors"
)

// Body 是所有 JSON 响应的统一外层结构。
type Body struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
}

// Success 发送一个标准的成功响应。
// 默认：HTTP 200，业务码 0，消息 "success"。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: "success", Data: data})
}

// SuccessWithRawData 发送原始数据的成功响应 (不包装 code 和 msg)。
// 用于健康检查等系统接口。
func SuccessWithRawData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error 发送错误响应。
// 优先识别 xerrors.Error (携带业务码与出错字段)，其次识别 gRPC Status，无法识别时兜底为 500。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	if e, ok := xerrors.FromError(err); ok {
		msg := e.Message
		if e.Type == xerrors.ErrInternal {
			msg = "internal error"
		}
		c.JSON(e.HTTPStatus(), Body{
			Code:   e.Code,
			Msg:    msg,
			Detail: e.Detail,
			Field:  e.Field(),
		})
		return
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		sc := grpcCodeToHTTP(st.Code())
		c.JSON(sc, Body{Code: sc, Msg: st.Message()})
		return
	}

	c.JSON(http.StatusInternalServerError, Body{
		Code: http.StatusInternalServerError,
		Msg:  "internal error",
	})
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg, detail string) {
	c.JSON(status, Body{Code: status, Msg: msg, Detail: detail})
}

// grpcCodeToHTTP 执行 gRPC 到 HTTP 的标准协议映射。
func grpcCodeToHTTP(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499 // Client Closed Request
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
