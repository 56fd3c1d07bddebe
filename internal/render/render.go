package render

import (
	"fmt"
	"strconv"

	"github.com/multi-agent/run-transcript/internal/content"
)

// Render 将内容变体映射为展示单元。
func Render(v content.Variant, ctx Context) Unit {
	switch v.Kind {
	case content.KindPlainText:
		return textUnit(ctx.key(), UnitText, v.Text, ctx.textLimit())
	case content.KindMultiModal:
		return renderMultiModal(v.Items, ctx)
	case content.KindToolCallList:
		return renderToolCalls(v.Calls, ctx)
	case content.KindToolResultList:
		return renderToolResults(v.Results, ctx)
	case content.KindNestedMessageList:
		return renderNested(v.Messages, ctx)
	default:
		text := v.Text
		if text == "" {
			text = content.Stringify(v.Raw)
		}
		kind := UnitOpaque
		switch v.Raw.(type) {
		case map[string]any, []any:
			kind = UnitJSON
		}
		return textUnit(ctx.key(), kind, text, ctx.jsonLimit())
	}
}

func renderMultiModal(items []content.MultiModalItem, ctx Context) Unit {
	u := Unit{Key: ctx.key(), Kind: UnitImageGallery, Thumbnail: ctx.Thumbnail}
	for i, item := range items {
		key := ctx.child(strconv.Itoa(i)).Key
		if !item.IsImage() {
			u.Children = append(u.Children, textUnit(key, UnitText, item.Text, ctx.textLimit()))
			continue
		}
		u.Children = append(u.Children, Unit{
			Key:       key,
			Kind:      UnitImage,
			Src:       item.Image.Source(),
			Alt:       item.Image.AltText(),
			Thumbnail: ctx.Thumbnail,
		})
	}
	return u
}

func renderToolCalls(calls []content.FunctionCall, ctx Context) Unit {
	u := Unit{Key: ctx.key(), Kind: UnitToolCallList, Label: "Tool calls", Linked: true, Compact: ctx.Compact}
	for i, call := range calls {
		args, _ := content.PrettyJSON(call.Arguments)
		child := textUnit(ctx.child("call/"+strconv.Itoa(i)).Key, UnitToolCall, args, ctx.jsonLimit())
		child.Label = "Tool call: " + call.Name
		child.Ref = call.ID
		child.Linked = true
		child.Compact = ctx.Compact
		u.Children = append(u.Children, child)
	}
	return u
}

func renderToolResults(results []content.FunctionExecutionResult, ctx Context) Unit {
	u := Unit{Key: ctx.key(), Kind: UnitToolResultList, Label: "Tool results", Linked: true, Compact: ctx.Compact}
	for i, r := range results {
		text, isJSON := content.PrettyJSON(r.Content)
		limit := ctx.textLimit()
		if isJSON {
			limit = ctx.jsonLimit()
		}
		child := textUnit(ctx.child("result/"+strconv.Itoa(i)).Key, UnitToolResult, text, limit)
		child.Label = "Tool result"
		if r.Name != "" {
			child.Label += ": " + r.Name
		}
		child.Ref = r.CallID
		child.Linked = true
		child.Error = r.IsError
		child.Compact = ctx.Compact
		u.Children = append(u.Children, child)
	}
	return u
}

// renderNested 首条完整展示, 后续条目紧凑展示, 图片一律缩略图。
func renderNested(msgs []content.NestedMessage, ctx Context) Unit {
	if ctx.Depth >= ctx.maxDepth() {
		return depthStub(ctx, len(msgs))
	}
	u := Unit{Key: ctx.key(), Kind: UnitNestedList, Label: fmt.Sprintf("%d nested messages", len(msgs)), Compact: ctx.Compact}
	for i, m := range msgs {
		childCtx := ctx.child("nested/" + strconv.Itoa(i))
		childCtx.Depth = ctx.Depth + 1
		childCtx.Compact = i > 0
		childCtx.Thumbnail = true
		childCtx.IsUser = roleOf(m.Source) == RoleUser
		childCtx.IsLast = i == len(msgs)-1

		body := Render(m.Content, childCtx.child("content"))
		u.Children = append(u.Children, Unit{
			Key:      childCtx.Key,
			Kind:     UnitMessage,
			Label:    m.Source,
			Source:   m.Source,
			Role:     roleOf(m.Source),
			Compact:  childCtx.Compact,
			Last:     childCtx.IsLast,
			Tokens:   tokensOf(m.ModelsUsage),
			Children: []Unit{body},
		})
	}
	return u
}

// depthStub 超过嵌套上限时的占位单元。
func depthStub(ctx Context, n int) Unit {
	return Unit{
		Key:     ctx.key(),
		Kind:    UnitOpaque,
		Label:   "Nested content omitted",
		Text:    fmt.Sprintf("[%d nested messages beyond depth %d]", n, ctx.maxDepth()),
		Compact: true,
	}
}
