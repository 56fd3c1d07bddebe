// event.go: 后端事件归一化: 别名分类 + 载荷解码。纯函数, 无锁。
package session

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
	"github.com/multi-agent/run-transcript/pkg/util"
)

// EventKind 归一化后的事件类型。
type EventKind string

const (
	EventRun          EventKind = "run"
	EventMessage      EventKind = "message"
	EventChunk        EventKind = "chunk"
	EventStatus       EventKind = "status"
	EventResult       EventKind = "result"
	EventError        EventKind = "error"
	EventInputRequest EventKind = "input_request"
	EventUnknown      EventKind = "unknown"
)

// Event 后端推送的原始事件。
type Event struct {
	Type  string          `json:"type"`
	RunID datamodel.ID    `json:"run_id"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// classifyEvent 按原始事件类型 (含别名) 分类。
func classifyEvent(raw string) EventKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "run", "run_snapshot", "run_update":
		return EventRun
	case "message", "agent_message", "textmessage", "multimodalmessage",
		"toolcallrequestevent", "toolcallexecutionevent", "llm_call_event":
		return EventMessage
	case "chunk", "message_chunk", "streaming_chunk", "modelclientstreamingchunkevent":
		return EventChunk
	case "status", "run_status", "status_update":
		return EventStatus
	case "result", "team_result", "completion":
		return EventResult
	case "error", "run_error":
		return EventError
	case "input_request", "userinputrequestedevent":
		return EventInputRequest
	default:
		return EventUnknown
	}
}

// chunkPayload 流式增量。
type chunkPayload struct {
	Source  string
	Content string
}

// statusPayload 状态变更。
type statusPayload struct {
	Status       datamodel.RunStatus
	ErrorMessage string
}

// resultPayload 最终结果及其附带状态 (缺省 complete)。
type resultPayload struct {
	Result datamodel.TeamResult
	Status datamodel.RunStatus
}

func decodeMap(data json.RawMessage) map[string]any {
	var payload map[string]any
	if len(bytes.TrimSpace(data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		_ = dec.Decode(&payload)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload
}

// stringField 按优先级取第一个非空字符串字段。
func stringField(payload map[string]any, keys ...string) string {
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := payload[k].(string); ok {
			values = append(values, s)
		}
	}
	return util.FirstNonEmpty(values...)
}

func decodeRun(data json.RawMessage) (*datamodel.Run, error) {
	var run datamodel.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrInvalidInput, "session.decodeRun", err.Error())
	}
	return &run, nil
}

// decodeMessage 接受完整 Message ({config: ...}) 或裸 AgentMessageConfig。
func decodeMessage(data json.RawMessage) (datamodel.Message, error) {
	payload := decodeMap(data)
	if _, wrapped := payload["config"]; wrapped {
		var m datamodel.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return datamodel.Message{}, pkgerr.Wrap(pkgerr.ErrInvalidInput, "session.decodeMessage", err.Error())
		}
		return m, nil
	}
	var cfg datamodel.AgentMessageConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return datamodel.Message{}, pkgerr.Wrap(pkgerr.ErrInvalidInput, "session.decodeMessage", err.Error())
	}
	if cfg.Source == "" {
		return datamodel.Message{}, pkgerr.Wrap(pkgerr.ErrInvalidInput, "session.decodeMessage", "message without source")
	}
	return datamodel.Message{Config: cfg}, nil
}

// decodeChunk 文本优先级: content > delta > text。
func decodeChunk(data json.RawMessage) chunkPayload {
	payload := decodeMap(data)
	return chunkPayload{
		Source:  stringField(payload, "source", "agent"),
		Content: stringField(payload, "content", "delta", "text"),
	}
}

func decodeStatus(data json.RawMessage) (statusPayload, error) {
	payload := decodeMap(data)
	raw := stringField(payload, "status", "state")
	status, err := datamodel.ParseRunStatus(raw)
	if err != nil {
		return statusPayload{}, err
	}
	return statusPayload{
		Status:       status,
		ErrorMessage: stringField(payload, "error_message", "error"),
	}, nil
}

// decodeResult 接受 {team_result: {...}, status} 或直接的 TeamResult。
func decodeResult(data json.RawMessage) (resultPayload, error) {
	var envelope struct {
		TeamResult *datamodel.TeamResult `json:"team_result"`
		Status     string                `json:"status"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return resultPayload{}, pkgerr.Wrap(pkgerr.ErrInvalidInput, "session.decodeResult", err.Error())
	}
	out := resultPayload{Status: datamodel.StatusComplete}
	if envelope.Status != "" {
		s, err := datamodel.ParseRunStatus(envelope.Status)
		if err != nil {
			return resultPayload{}, err
		}
		out.Status = s
	}
	if envelope.TeamResult != nil {
		out.Result = *envelope.TeamResult
		return out, nil
	}
	if err := json.Unmarshal(data, &out.Result); err != nil {
		return resultPayload{}, pkgerr.Wrap(pkgerr.ErrInvalidInput, "session.decodeResult", err.Error())
	}
	return out, nil
}

// errorText 错误事件的文本优先级: error > message > error_message > content。
func errorText(data json.RawMessage) string {
	payload := decodeMap(data)
	if s := stringField(payload, "error", "message", "error_message", "content"); s != "" {
		return s
	}
	var s string
	if json.Unmarshal(data, &s) == nil {
		return s
	}
	return ""
}
