package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Stringify 尽力美化输出任意值 (两空格缩进 JSON), 无法编码时 (含循环引用) 输出类型占位。
func Stringify(v any) string {
	return marshal(v, "  ")
}

// StringifyCompact 紧凑 JSON, 无法编码时输出类型占位。
func StringifyCompact(v any) string {
	return marshal(v, "")
}

func marshal(v any, indent string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return typePlaceholder(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// typePlaceholder 不可编码值的有界文本表示, 不遍历值本身。
func typePlaceholder(v any) string {
	return fmt.Sprintf("<%T>", v)
}

// PrettyJSON 若 s 是合法 JSON 则返回美化结果, 否则原样返回。
func PrettyJSON(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return s, false
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return s, false
	}
	return buf.String(), true
}
