// Package errors 提供统一错误类型与哨兵错误。
//
// 两层结构:
//   - L1 哨兵错误: ErrNotFound / ErrInvalidInput / ErrUnknownStatus 等
//   - L2 AppError: 带 Op + Code + Message 的应用级错误
package errors

import (
	"errors"
	"fmt"
)

// ========================================
// L1 哨兵错误 (Sentinel Errors)
// ========================================

var (
	// ErrNotFound 资源不存在
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput 输入参数无效
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal 内部错误
	ErrInternal = errors.New("internal error")

	// ErrUnknownStatus run 状态不在封闭集合内 (协议/编程错误, 不可恢复)
	ErrUnknownStatus = errors.New("unknown run status")

	// ErrInvalidTransition 终态 run 不接受新的状态变更
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotAllowed 当前状态不提供该操作 (例如已结束的 run 上取消)
	ErrNotAllowed = errors.New("operation not allowed")
)

// 错误码常量, 供 HTTP 层映射。
const (
	CodeUnknownStatus     = "UNKNOWN_STATUS"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotAllowed        = "NOT_ALLOWED"
	CodeStore             = "STORE_ERROR"
	CodeNoBackend         = "NO_BACKEND"
)

// ========================================
// L2 AppError (应用级错误)
// ========================================

// AppError 应用级错误，带操作上下文。
type AppError struct {
	Op      string // 操作名，如 "RunStore.Get"
	Code    string // 错误码，如 "UNKNOWN_STATUS"
	Message string // 人类可读消息
	Err     error  // 原始错误
}

// Error 实现 error 接口。
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap 支持 errors.Is / errors.As 链式查找。
func (e *AppError) Unwrap() error {
	return e.Err
}

// ========================================
// 工厂函数
// ========================================

// New 创建无原因链的应用错误。
func New(op, message string) error {
	return &AppError{Op: op, Message: message}
}

// Newf 创建带格式化消息的应用错误。
func Newf(op, format string, args ...any) error {
	return &AppError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装错误并附加操作上下文。
func Wrap(err error, op string, message string) error {
	return &AppError{Op: op, Message: message, Err: err}
}

// Wrapf 用格式化消息包装错误。
func Wrapf(err error, op, format string, args ...any) error {
	return &AppError{Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithCode 包装错误并附带错误码。
func WithCode(err error, op, code, message string) error {
	return &AppError{Op: op, Code: code, Message: message, Err: err}
}

// CodeOf 返回错误链上第一个非空 Code, 没有则返回 ""。
func CodeOf(err error) string {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return ""
		}
		if appErr.Code != "" {
			return appErr.Code
		}
		err = appErr.Err
	}
	return ""
}
