// status.go: run 状态枚举 (封闭集合) 与终态判定。
package datamodel

import (
	"strconv"
	"strings"

	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
)

// RunStatus run 生命周期状态。
type RunStatus string

const (
	StatusActive        RunStatus = "active"
	StatusAwaitingInput RunStatus = "awaiting_input"
	StatusComplete      RunStatus = "complete"
	StatusError         RunStatus = "error"
	StatusStopped       RunStatus = "stopped"
)

// AllStatuses 按生命周期顺序列出全部状态。
var AllStatuses = []RunStatus{
	StatusActive,
	StatusAwaitingInput,
	StatusComplete,
	StatusError,
	StatusStopped,
}

// Valid 报告状态是否属于封闭集合。
func (s RunStatus) Valid() bool {
	switch s {
	case StatusActive, StatusAwaitingInput, StatusComplete, StatusError, StatusStopped:
		return true
	}
	return false
}

// IsTerminal complete/error/stopped 为终态。
func (s RunStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusStopped
}

// InProgress active/awaiting_input 视为进行中 (可取消)。
func (s RunStatus) InProgress() bool {
	return s == StatusActive || s == StatusAwaitingInput
}

// ParseRunStatus 解析状态字符串, 未知值返回 ErrUnknownStatus。
func ParseRunStatus(raw string) (RunStatus, error) {
	s := RunStatus(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", UnknownStatusError("datamodel.ParseRunStatus", raw)
	}
	return s, nil
}

// UnknownStatusError 构造带 UNKNOWN_STATUS 错误码的致命错误。
func UnknownStatusError(op, raw string) error {
	return pkgerr.WithCode(pkgerr.ErrUnknownStatus, op, pkgerr.CodeUnknownStatus,
		"status "+strconv.Quote(raw)+" is not one of active, awaiting_input, complete, error, stopped")
}
