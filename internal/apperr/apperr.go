// Package apperr 定义业务错误分类，handler 层据此映射 HTTP 状态码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPermissionDenied
	KindNotFound
	KindConflict
	KindBusiness
	KindRateLimited
)

// Error 带类别的业务错误
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBusiness:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validation 参数或状态机校验失败
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

// PermissionDenied 无权限
func PermissionDenied(format string, args ...interface{}) *Error {
	return newf(KindPermissionDenied, format, args...)
}

// NotFound 对象不存在
func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

// Conflict 并发冲突（版本号不匹配等）
func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

// Business 业务规则拒绝
func Business(format string, args ...interface{}) *Error {
	return newf(KindBusiness, format, args...)
}

// RateLimited 触发限流
func RateLimited(format string, args ...interface{}) *Error {
	return newf(KindRateLimited, format, args...)
}

// Wrap 包装底层错误并保持类别
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// StatusOf 从任意错误提取 HTTP 状态码，非业务错误按 500 处理
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsKind 判断错误是否属于指定类别
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
