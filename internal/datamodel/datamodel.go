// Package datamodel 定义 run 转录引擎的数据模型。
//
// 所有结构与后端 JSON 结构一一对应 (snake_case 字段)。
// 引擎只读取这些快照, 不做修改; 宿主层需要修改时先 Clone()。
package datamodel

import (
	"bytes"
	"encoding/json"
	"strings"
)

// 保留的 source 标识。
const (
	SourceUser         = "user"
	SourceLLMCallEvent = "llm_call_event"
)

// ID run / message 标识。后端可能下发整数或字符串, 统一保存为字符串。
type ID string

// UnmarshalJSON 接受 JSON 整数、字符串或 null。
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String 实现 fmt.Stringer。
func (id ID) String() string { return string(id) }

// ModelsUsage 单条消息的 token 统计。
type ModelsUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total 返回 prompt + completion; nil 视为 0。
func (u *ModelsUsage) Total() int {
	if u == nil {
		return 0
	}
	return u.PromptTokens + u.CompletionTokens
}

// AgentMessageConfig 一条转录消息的内容。Content 形状未定, 由 content.Classify 解析。
type AgentMessageConfig struct {
	Source      string       `json:"source"`
	Content     any          `json:"content"`
	Type        string       `json:"type,omitempty"`
	ModelsUsage *ModelsUsage `json:"models_usage,omitempty"`
}

// IsUser 报告消息是否由用户发出。
func (c AgentMessageConfig) IsUser() bool { return c.Source == SourceUser }

// IsDiagnostic 报告消息是否为内部诊断事件 (llm_call_event)。
func (c AgentMessageConfig) IsDiagnostic() bool { return c.Source == SourceLLMCallEvent }

// Message 转录条目。ID/RunID/CreatedAt 仅用于排序与持久化。
type Message struct {
	ID        ID                 `json:"id,omitempty"`
	RunID     ID                 `json:"run_id,omitempty"`
	Config    AgentMessageConfig `json:"config"`
	CreatedAt Timestamp          `json:"created_at"`
}

// TaskResult 团队执行的最终结果。
type TaskResult struct {
	Messages   []AgentMessageConfig `json:"messages"`
	StopReason string               `json:"stop_reason,omitempty"`
}

// TeamResult 包装 TaskResult 及执行统计。
type TeamResult struct {
	TaskResult TaskResult `json:"task_result"`
	Usage      string     `json:"usage,omitempty"`
	Duration   float64    `json:"duration,omitempty"`
}

// Run 一次 agent 任务执行。
type Run struct {
	ID           ID                 `json:"id"`
	CreatedAt    Timestamp          `json:"created_at"`
	Status       RunStatus          `json:"status"`
	Task         AgentMessageConfig `json:"task"`
	TeamResult   *TeamResult        `json:"team_result,omitempty"`
	Messages     []Message          `json:"messages"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// LastTeamResultMessage 返回最终结果中的最后一条消息。
func (r *Run) LastTeamResultMessage() (AgentMessageConfig, bool) {
	if r == nil || r.TeamResult == nil || len(r.TeamResult.TaskResult.Messages) == 0 {
		return AgentMessageConfig{}, false
	}
	msgs := r.TeamResult.TaskResult.Messages
	return msgs[len(msgs)-1], true
}

// StopReason 返回最终结果的停止原因, 不存在时为空。
func (r *Run) StopReason() string {
	if r == nil || r.TeamResult == nil {
		return ""
	}
	return strings.TrimSpace(r.TeamResult.TaskResult.StopReason)
}

// StreamingFragment 尚未提交的流式输出片段, 归宿主层所有。
type StreamingFragment struct {
	RunID   ID     `json:"run_id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Matches 报告片段是否属于 runID。nil 片段从不匹配。
func (f *StreamingFragment) Matches(runID ID) bool {
	return f != nil && f.RunID != "" && f.RunID == runID
}
