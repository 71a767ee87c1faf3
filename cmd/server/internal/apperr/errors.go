// Package apperr 定义路线图生成流水线与外围 CRUD 共用的错误分类
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类型代码
type Kind string

const (
	// KindValidation 请求参数非法或互相矛盾，在调用 LLM 与写库之前拒绝
	KindValidation Kind = "VALIDATION_ERROR"

	// KindUpstreamTimeout LLM 服务超时
	KindUpstreamTimeout Kind = "UPSTREAM_TIMEOUT"

	// KindUpstream LLM 服务不可达或返回非 2xx
	KindUpstream Kind = "UPSTREAM_ERROR"

	// KindMalformedOutput LLM 有响应但内容不是合法 JSON
	KindMalformedOutput Kind = "MALFORMED_LLM_OUTPUT"

	// KindInvalidShape LLM 输出的 JSON 不符合 roadmap 结构
	KindInvalidShape Kind = "INVALID_ROADMAP_SHAPE"

	// KindPersistence 写库中途失败，已写入的行保留
	KindPersistence Kind = "PERSISTENCE_ERROR"

	// KindNotFound 资源不存在或不属于当前用户
	KindNotFound Kind = "NOT_FOUND"

	// KindUnauthorized token 无效或过期
	KindUnauthorized Kind = "UNAUTHORIZED"

	// KindConfiguration 服务端配置缺失（如未配置 API Key）
	KindConfiguration Kind = "CONFIGURATION_ERROR"
)

// Error 携带分类的业务错误
type Error struct {
	Kind       Kind   `json:"code"`
	Message    string `json:"message"`
	Cause      error  `json:"-"`
	StatusCode int    `json:"status_code,omitempty"` // 上游 HTTP 状态码
	Body       string `json:"body,omitempty"`        // 上游响应体
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap 实现错误链支持
func (e *Error) Unwrap() error {
	return e.Cause
}

// New 创建错误
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validation 创建参数校验错误
func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

// UpstreamTimeout 创建 LLM 超时错误
func UpstreamTimeout(cause error) *Error {
	return New(KindUpstreamTimeout, "LLM request timed out. Try again.", cause)
}

// Upstream 创建 LLM 非成功响应错误
func Upstream(statusCode int, body string) *Error {
	e := New(KindUpstream, fmt.Sprintf("LLM API error: %d - %s", statusCode, body), nil)
	e.StatusCode = statusCode
	e.Body = body
	return e
}

// UpstreamUnreachable 创建 LLM 不可达错误
func UpstreamUnreachable(cause error) *Error {
	return New(KindUpstream, "LLM API unreachable", cause)
}

// MalformedOutput 创建 LLM 输出无法解析错误
func MalformedOutput(message string, cause error) *Error {
	return New(KindMalformedOutput, message, cause)
}

// InvalidShape 创建 roadmap 结构错误，path 为首个出错字段
func InvalidShape(path, reason string) *Error {
	return New(KindInvalidShape, fmt.Sprintf("invalid roadmap at %s: %s", path, reason), nil)
}

// EmptyRoadmap 创建空 roadmap 错误
func EmptyRoadmap() *Error {
	return New(KindInvalidShape, "No roadmap generated", nil)
}

// Persistence 创建写库错误
func Persistence(message string, cause error) *Error {
	return New(KindPersistence, message, cause)
}

// NotFound 创建资源不存在错误
func NotFound(resource string) *Error {
	return New(KindNotFound, resource+" not found.", nil)
}

// Unauthorized 创建鉴权失败错误
func Unauthorized(message string, cause error) *Error {
	return New(KindUnauthorized, message, cause)
}

// Configuration 创建配置错误
func Configuration(message string) *Error {
	return New(KindConfiguration, message, nil)
}

// As 从错误链中取出 *Error
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回错误类型，非分类错误视为写库错误
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindPersistence
}

// Is 判断错误是否属于指定类型
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus 错误类型到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstream, KindMalformedOutput, KindInvalidShape:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message 返回面向用户的错误消息
func Message(err error) string {
	if e, ok := As(err); ok {
		if e.Kind == KindPersistence && e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
