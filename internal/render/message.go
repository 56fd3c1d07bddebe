package render

import (
	"github.com/multi-agent/run-transcript/internal/content"
	"github.com/multi-agent/run-transcript/internal/datamodel"
)

// RenderMessage 渲染一条消息: 作者信息、内容、token 徽标。
//
// 诊断消息 (llm_call_event) 的文本内容按日志展示, 可解析的 JSON 会美化。
func RenderMessage(cfg datamodel.AgentMessageConfig, ctx Context) Unit {
	role := roleOf(cfg.Source)
	ctx.IsUser = role == RoleUser

	v := content.ClassifyWithDepth(cfg.Content, ctx.maxDepth())
	var body Unit
	if role == RoleDiagnostic && (v.Kind == content.KindPlainText || v.Kind == content.KindOpaque) {
		body = logUnit(v.Text, ctx.child("content"))
	} else {
		body = Render(v, ctx.child("content"))
	}

	u := Unit{
		Key:      ctx.key(),
		Kind:     UnitMessage,
		Source:   cfg.Source,
		Role:     role,
		Compact:  ctx.Compact,
		Last:     ctx.IsLast,
		Tokens:   tokensOf(cfg.ModelsUsage),
		Children: []Unit{body},
	}
	if role != RoleUser {
		u.Label = cfg.Source
	}
	return u
}

func logUnit(text string, ctx Context) Unit {
	if pretty, ok := content.PrettyJSON(text); ok {
		u := textUnit(ctx.key(), UnitLog, pretty, ctx.jsonLimit())
		u.Label = "LLM call"
		return u
	}
	u := textUnit(ctx.key(), UnitLog, text, ctx.textLimit())
	u.Label = "LLM call"
	return u
}

func roleOf(source string) Role {
	switch source {
	case datamodel.SourceUser:
		return RoleUser
	case datamodel.SourceLLMCallEvent:
		return RoleDiagnostic
	default:
		return RoleAgent
	}
}

// tokensOf 仅在存在统计时返回徽标数值。
func tokensOf(u *datamodel.ModelsUsage) *int {
	if u == nil {
		return nil
	}
	n := u.Total()
	return &n
}
