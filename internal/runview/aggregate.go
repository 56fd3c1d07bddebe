// Package runview 由 run 快照与流式片段推导转录视图。
//
// 包内全部函数为纯函数: 每次调用从传入的快照重新计算, 不保留状态, 不修改输入。
// 可见性与阈值由调用者通过 Options 注入。
package runview

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/render"
)

// Visibility 可见性策略。
type Visibility struct {
	// ShowDiagnostics 为 false 时 llm_call_event 消息从输出与统计中整体剔除。
	ShowDiagnostics bool `json:"show_diagnostics"`
}

// Admits 报告消息在该策略下是否可见。
func (v Visibility) Admits(m datamodel.Message) bool {
	return v.ShowDiagnostics || !m.Config.IsDiagnostic()
}

// VisibleMessages 按策略过滤消息, 保持插入顺序。
func VisibleMessages(messages []datamodel.Message, vis Visibility) []datamodel.Message {
	return lo.Filter(messages, func(m datamodel.Message, _ int) bool {
		return vis.Admits(m)
	})
}

// LastMeaningful 返回可见集合中最后一条非诊断消息, 不存在时返回 nil。
func LastMeaningful(visible []datamodel.Message) *datamodel.Message {
	last, _, ok := lo.FindLastIndexOf(visible, func(m datamodel.Message) bool {
		return !m.Config.IsDiagnostic()
	})
	if !ok {
		return nil
	}
	return &last
}

// UsageTotal 累加 prompt + completion token, 缺失统计计 0。
func UsageTotal(visible []datamodel.Message) int {
	return lo.SumBy(visible, func(m datamodel.Message) int {
		return m.Config.ModelsUsage.Total()
	})
}

// Aggregate 生成线程正文的展示单元。
//
// 用户消息不在正文中重放 (任务消息单独作为标题展示), 其余消息按插入顺序渲染。
// Key 为 "thread/<可见序号>"。
func Aggregate(messages []datamodel.Message, vis Visibility, rctx render.Context) []render.Unit {
	visible := VisibleMessages(messages, vis)
	units := make([]render.Unit, 0, len(visible))
	for i, m := range visible {
		if m.Config.IsUser() {
			continue
		}
		ctx := rctx
		ctx.Key = "thread/" + strconv.Itoa(i)
		ctx.IsLast = i == len(visible)-1
		units = append(units, render.RenderMessage(m.Config, ctx))
	}
	return units
}
