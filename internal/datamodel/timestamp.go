package datamodel

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Timestamp 容忍多种 ISO-8601 写法的时间戳。
//
// 无时区的时间按 UTC 解析; null、空串或无法解析时为零值。
// 零值序列化为 null。
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NewTimestamp 以 UTC 包装 t。
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t.UTC()} }

// ParseTimestamp 依次尝试已知格式。
func ParseTimestamp(raw string) (Timestamp, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return NewTimestamp(t), true
		}
	}
	return Timestamp{}, false
}

// UnmarshalJSON 解析失败不报错, 时间戳是可选展示字段。
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*ts = Timestamp{}
		return nil
	}
	*ts, _ = ParseTimestamp(raw)
	return nil
}

// MarshalJSON 输出 RFC 3339 (UTC), 零值输出 null。
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}
