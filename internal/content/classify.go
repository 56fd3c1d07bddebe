package content

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/multi-agent/run-transcript/internal/datamodel"
)

// Classify 使用默认嵌套深度分类内容。
func Classify(content any) Variant {
	return ClassifyWithDepth(content, DefaultMaxDepth)
}

// ClassifyWithDepth 分类内容, 嵌套消息最多展开 maxDepth 层, 更深的内容归为 Opaque。
func ClassifyWithDepth(content any, maxDepth int) Variant {
	return classify(normalize(content), maxDepth)
}

func classify(v any, depth int) Variant {
	if list, ok := v.([]any); ok && len(list) > 0 {
		switch {
		case everyObject(list, "id", "name", "arguments"):
			return toolCalls(list)
		case everyObject(list, "call_id", "content"):
			return toolResults(list)
		case everyObject(list, "source", "content", "type"):
			if depth <= 0 {
				return opaque(v)
			}
			return nestedMessages(list, depth-1)
		case isMultiModal(list):
			return multiModal(list)
		}
	}
	if s, ok := scalarText(v); ok {
		return Variant{Kind: KindPlainText, Text: s}
	}
	return opaque(v)
}

func opaque(v any) Variant {
	return Variant{Kind: KindOpaque, Text: Stringify(v), Raw: v}
}

// everyObject 报告每个元素都是对象且包含全部 keys (值可为 null)。
func everyObject(list []any, keys ...string) bool {
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return false
		}
		for _, k := range keys {
			if _, ok := m[k]; !ok {
				return false
			}
		}
	}
	return true
}

func isMultiModal(list []any) bool {
	for _, item := range list {
		switch x := item.(type) {
		case string:
		case map[string]any:
			_, hasURL := x["url"]
			_, hasData := x["data"]
			if !hasURL && !hasData {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func toolCalls(list []any) Variant {
	calls := make([]FunctionCall, 0, len(list))
	for _, item := range list {
		m := item.(map[string]any)
		calls = append(calls, FunctionCall{
			ID:        fieldText(m["id"]),
			Name:      fieldText(m["name"]),
			Arguments: argumentsText(m["arguments"]),
		})
	}
	return Variant{Kind: KindToolCallList, Calls: calls}
}

func toolResults(list []any) Variant {
	results := make([]FunctionExecutionResult, 0, len(list))
	for _, item := range list {
		m := item.(map[string]any)
		isErr, _ := m["is_error"].(bool)
		results = append(results, FunctionExecutionResult{
			CallID:  fieldText(m["call_id"]),
			Name:    fieldText(m["name"]),
			Content: resultText(m["content"]),
			IsError: isErr,
		})
	}
	return Variant{Kind: KindToolResultList, Results: results}
}

func nestedMessages(list []any, depth int) Variant {
	msgs := make([]NestedMessage, 0, len(list))
	for _, item := range list {
		m := item.(map[string]any)
		msgs = append(msgs, NestedMessage{
			Source:      fieldText(m["source"]),
			Type:        fieldText(m["type"]),
			Content:     classify(normalize(m["content"]), depth),
			ModelsUsage: usageOf(m["models_usage"]),
		})
	}
	return Variant{Kind: KindNestedMessageList, Messages: msgs}
}

func multiModal(list []any) Variant {
	items := make([]MultiModalItem, 0, len(list))
	for _, item := range list {
		switch x := item.(type) {
		case string:
			items = append(items, MultiModalItem{Text: x})
		case map[string]any:
			items = append(items, MultiModalItem{Image: &Image{
				URL:      fieldText(x["url"]),
				Data:     fieldText(x["data"]),
				MimeType: fieldText(firstPresent(x, "mime_type", "media_type", "format")),
				Alt:      fieldText(x["alt"]),
			}})
		}
	}
	return Variant{Kind: KindMultiModal, Items: items}
}

// usageOf 从嵌套消息中提取 token 统计, 形状不对时返回 nil。
func usageOf(v any) *datamodel.ModelsUsage {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &datamodel.ModelsUsage{
		PromptTokens:     intOf(m["prompt_tokens"]),
		CompletionTokens: intOf(m["completion_tokens"]),
	}
}

func intOf(v any) int {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
		if f, err := x.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	}
	return 0
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// fieldText 将标量字段转为字符串, null 为空串, 结构化值为紧凑 JSON。
func fieldText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := scalarText(v); ok {
		return s
	}
	return StringifyCompact(v)
}

// argumentsText 工具参数: 字符串原样保留, 结构化参数转为紧凑 JSON。
func argumentsText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return StringifyCompact(v)
}

// resultText 工具结果: 字符串原样保留, 其余美化输出。
func resultText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	if s, ok := scalarText(v); ok {
		return s
	}
	return Stringify(v)
}

// scalarText 字符串、数字、布尔可直接转为文本。
func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	}
	return "", false
}

// maxNormalizeDepth normalize 展开 []any 的最大层数, 更深的值 (包括自引用) 以类型占位。
const maxNormalizeDepth = 64

// normalize 将任意 Go 值转为 JSON 通用形状 (map[string]any / []any / 标量)。
// 不修改输入: 需要转换时总是构造新值。
func normalize(v any) any {
	return normalizeDepth(v, 0)
}

func normalizeDepth(v any, depth int) any {
	switch x := v.(type) {
	case nil, string, bool, json.Number, float64, float32,
		int, int32, int64, uint, uint64, map[string]any:
		return v
	case json.RawMessage:
		return decodeBytes(x)
	case []byte:
		return decodeBytes(x)
	case []any:
		if depth >= maxNormalizeDepth {
			return typePlaceholder(v)
		}
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeDepth(item, depth+1)
		}
		return out
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return decodeBytes(raw)
	}
}

// decodeBytes 解码 JSON 字节; 非法 JSON 视为纯文本。
func decodeBytes(b []byte) any {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return string(b)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil || dec.More() {
		return string(b)
	}
	return out
}
