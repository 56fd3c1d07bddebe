// Package render 将已分类的内容映射为展示单元树。
//
// Render / RenderMessage 是纯函数: 不修改输入, 相同输入与 Context 总是得到结构相同的树,
// Key 由树中路径决定, 供渲染层做差异比较。
package render

import "github.com/multi-agent/run-transcript/internal/content"

// UnitKind 展示单元类型。
type UnitKind string

const (
	UnitText           UnitKind = "text"
	UnitJSON           UnitKind = "json"
	UnitImageGallery   UnitKind = "image_gallery"
	UnitImage          UnitKind = "image"
	UnitToolCallList   UnitKind = "tool_call_list"
	UnitToolCall       UnitKind = "tool_call"
	UnitToolResultList UnitKind = "tool_result_list"
	UnitToolResult     UnitKind = "tool_result"
	UnitNestedList     UnitKind = "nested_list"
	UnitOpaque         UnitKind = "opaque"
	UnitMessage        UnitKind = "message"
	UnitLog            UnitKind = "log"
	UnitHeader         UnitKind = "header"
	UnitStreaming      UnitKind = "streaming"
	UnitStatus         UnitKind = "status"
	UnitInputRequest   UnitKind = "input_request"
	UnitSummary        UnitKind = "summary"
)

// Role 消息作者角色。
type Role string

const (
	RoleUser       Role = "user"
	RoleAgent      Role = "agent"
	RoleDiagnostic Role = "diagnostic"
)

// Unit 展示单元。
type Unit struct {
	Key    string   `json:"key"`
	Kind   UnitKind `json:"kind"`
	Label  string   `json:"label,omitempty"`
	Source string   `json:"source,omitempty"`
	Role   Role     `json:"role,omitempty"`

	// Text 为显示文本; 截断时 Full 保存完整内容。
	Text       string `json:"text,omitempty"`
	Full       string `json:"full,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	FullLength int    `json:"full_length,omitempty"`
	Expandable bool   `json:"expandable,omitempty"`

	Src       string `json:"src,omitempty"`
	Alt       string `json:"alt,omitempty"`
	Thumbnail bool   `json:"thumbnail,omitempty"`

	// Ref 工具调用 id / 结果对应的 call_id。
	Ref     string `json:"ref,omitempty"`
	Linked  bool   `json:"linked,omitempty"`
	Error   bool   `json:"error,omitempty"`
	Compact bool   `json:"compact,omitempty"`
	Last    bool   `json:"last,omitempty"`
	Tokens  *int   `json:"tokens,omitempty"`

	Children []Unit `json:"children,omitempty"`
}

// Walk 先序遍历单元树, fn 返回 false 时停止。
func (u Unit) Walk(fn func(Unit) bool) bool {
	if !fn(u) {
		return false
	}
	for _, c := range u.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Count 统计树中 kind 类型的单元数。
func (u Unit) Count(kind UnitKind) int {
	n := 0
	u.Walk(func(x Unit) bool {
		if x.Kind == kind {
			n++
		}
		return true
	})
	return n
}

// Context 渲染参数。
type Context struct {
	IsUser    bool
	IsLast    bool
	Compact   bool
	Thumbnail bool

	Depth    int
	MaxDepth int

	TextThreshold int
	JSONThreshold int

	// Key 当前单元在树中的路径前缀。
	Key string
}

// 默认截断阈值 (字符数)。
const (
	DefaultTextThreshold = 400
	DefaultJSONThreshold = 800
)

// DefaultContext 返回默认阈值与嵌套上限的 Context。
func DefaultContext() Context {
	return Context{
		MaxDepth:      content.DefaultMaxDepth,
		TextThreshold: DefaultTextThreshold,
		JSONThreshold: DefaultJSONThreshold,
	}
}

// child 派生子单元的 Context。
func (c Context) child(key string) Context {
	c.Key = c.key() + "/" + key
	return c
}

func (c Context) key() string {
	if c.Key == "" {
		return "root"
	}
	return c.Key
}

func (c Context) textLimit() int {
	if c.TextThreshold <= 0 {
		return DefaultTextThreshold
	}
	return c.TextThreshold
}

func (c Context) jsonLimit() int {
	if c.JSONThreshold <= 0 {
		return DefaultJSONThreshold
	}
	return c.JSONThreshold
}

func (c Context) maxDepth() int {
	if c.MaxDepth <= 0 {
		return content.DefaultMaxDepth
	}
	return c.MaxDepth
}
