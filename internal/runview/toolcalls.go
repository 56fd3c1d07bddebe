package runview

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/multi-agent/run-transcript/internal/content"
	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/render"
)

// ToolCallPanel 侧栏: 仅列出非用户消息中的工具调用与工具结果, 紧凑展示。
func ToolCallPanel(visible []datamodel.Message, rctx render.Context) []render.Unit {
	return lo.FilterMap(visible, func(m datamodel.Message, i int) (render.Unit, bool) {
		if m.Config.IsUser() {
			return render.Unit{}, false
		}
		v := content.ClassifyWithDepth(m.Config.Content, rctx.MaxDepth)
		if v.Kind != content.KindToolCallList && v.Kind != content.KindToolResultList {
			return render.Unit{}, false
		}
		ctx := rctx
		ctx.Key = "tools/" + strconv.Itoa(i)
		ctx.Compact = true
		ctx.IsLast = i == len(visible)-1
		return render.RenderMessage(m.Config, ctx), true
	})
}
