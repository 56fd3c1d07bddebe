// Package content 将形状未定的消息内容归类为封闭的变体集合。
//
// Classify 是全函数: 任意输入都恰好得到一个 Variant, 从不 panic。
// 判定顺序 (先匹配者胜):
//
//	ToolCallList → ToolResultList → NestedMessageList → MultiModal → PlainText → Opaque
//
// 空列表不匹配任何列表变体, 归为 Opaque。
package content

import "github.com/multi-agent/run-transcript/internal/datamodel"

// Kind 内容变体标签。
type Kind string

const (
	KindPlainText         Kind = "plain_text"
	KindMultiModal        Kind = "multi_modal"
	KindToolCallList      Kind = "tool_call_list"
	KindToolResultList    Kind = "tool_result_list"
	KindNestedMessageList Kind = "nested_message_list"
	KindOpaque            Kind = "opaque"
)

// DefaultMaxDepth 嵌套消息的默认递归上限。
const DefaultMaxDepth = 4

// PlaceholderImage 图片既无 url 也无 data 时使用的占位地址。
const PlaceholderImage = "/api/placeholder/400/320"

// DefaultImageAlt 图片缺省替代文本。
const DefaultImageAlt = "Image"

// Variant 已分类的内容。只有与 Kind 对应的字段有值。
type Variant struct {
	Kind     Kind                      `json:"kind"`
	Text     string                    `json:"text,omitempty"`
	Items    []MultiModalItem          `json:"items,omitempty"`
	Calls    []FunctionCall            `json:"calls,omitempty"`
	Results  []FunctionExecutionResult `json:"results,omitempty"`
	Messages []NestedMessage           `json:"messages,omitempty"`
	// Raw 为 Opaque 保留归一化后的原值。
	Raw any `json:"-"`
}

// MultiModalItem 文本或图片。
type MultiModalItem struct {
	Text  string `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
}

// IsImage 报告条目是否为图片。
func (m MultiModalItem) IsImage() bool { return m.Image != nil }

// Image 图片引用: 外部 URL 或内联 base64 数据。
type Image struct {
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Alt      string `json:"alt,omitempty"`
}

// FunctionCall 工具调用。Arguments 保持字符串形式, 不在此层解析。
type FunctionCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionExecutionResult 工具执行结果。
type FunctionExecutionResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// NestedMessage 嵌套消息, Content 已递归分类。
type NestedMessage struct {
	Source      string                 `json:"source"`
	Type        string                 `json:"type"`
	Content     Variant                `json:"content"`
	ModelsUsage *datamodel.ModelsUsage `json:"models_usage,omitempty"`
}
