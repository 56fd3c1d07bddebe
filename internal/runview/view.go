package runview

import (
	"strconv"
	"time"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/render"
	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
)

// Hooks 宿主层提供的回调; 引擎只在允许时调用, 不实现传输。
type Hooks struct {
	Cancel      func(runID datamodel.ID) error
	SubmitInput func(runID datamodel.ID, response string) error
}

// Options 单次构建的参数。
type Options struct {
	Visibility Visibility
	Render     render.Context
	Hooks      Hooks
}

// DefaultOptions 隐藏诊断消息, 默认阈值。
func DefaultOptions() Options {
	return Options{Render: render.DefaultContext()}
}

// OptionsFor 由宿主配置组装 Options; 非正阈值沿用默认值。
func OptionsFor(showDiagnostics bool, textThreshold, jsonThreshold, maxDepth int) Options {
	opts := DefaultOptions()
	opts.Visibility.ShowDiagnostics = showDiagnostics
	if textThreshold > 0 {
		opts.Render.TextThreshold = textThreshold
	}
	if jsonThreshold > 0 {
		opts.Render.JSONThreshold = jsonThreshold
	}
	if maxDepth > 0 {
		opts.Render.MaxDepth = maxDepth
	}
	return opts
}

// View 一次渲染周期的完整输出。
type View struct {
	RunID     datamodel.ID `json:"run_id"`
	CreatedAt time.Time    `json:"created_at"`

	Header       render.Unit   `json:"header"`
	Status       Affordance    `json:"status"`
	StatusUnit   render.Unit   `json:"status_unit"`
	Summary      *render.Unit  `json:"summary,omitempty"`
	Thread       []render.Unit `json:"thread"`
	Overlay      *render.Unit  `json:"overlay,omitempty"`
	InputRequest *render.Unit  `json:"input_request,omitempty"`
	ToolCalls    []render.Unit `json:"tool_calls,omitempty"`

	Usage          int                `json:"usage"`
	VisibleCount   int                `json:"visible_count"`
	LastMeaningful *datamodel.Message `json:"last_meaningful,omitempty"`

	hooks Hooks
}

// Build 从 run 快照与可选片段构建视图。
//
// 未知状态是致命错误: 返回 ErrUnknownStatus 且不产生任何单元。
func Build(run *datamodel.Run, frag *datamodel.StreamingFragment, opts Options) (View, error) {
	aff, err := ForRun(run)
	if err != nil {
		return View{}, err
	}

	visible := VisibleMessages(run.Messages, opts.Visibility)
	v := View{
		RunID:        run.ID,
		CreatedAt:    run.CreatedAt.Time,
		Status:       aff,
		StatusUnit:   statusUnit(aff),
		Thread:       Aggregate(run.Messages, opts.Visibility, opts.Render),
		Overlay:      Overlay(run, frag),
		ToolCalls:    ToolCallPanel(visible, opts.Render),
		Usage:        UsageTotal(visible),
		VisibleCount: len(visible),
		hooks:        opts.Hooks,
	}

	hctx := opts.Render
	hctx.Key = "header"
	v.Header = render.RenderMessage(run.Task, hctx)
	v.Header.Kind = render.UnitHeader

	if last := LastMeaningful(visible); last != nil {
		cp := *last
		v.LastMeaningful = &cp
	}
	if aff.InputRequest {
		v.InputRequest = &render.Unit{Key: "input", Kind: render.UnitInputRequest, Label: InputPrompt}
	}
	if aff.ShowSummary {
		v.Summary = TerminalSummary(run, visible, opts.Render)
	}
	return v, nil
}

func statusUnit(a Affordance) render.Unit {
	return render.Unit{Key: "status", Kind: render.UnitStatus, Label: a.Label, Text: string(a.Indicator)}
}

// Units 按展示顺序返回全部单元: 标题、状态、摘要、正文、流式片段、输入框。
func (v View) Units() []render.Unit {
	if v.RunID == "" && v.Status.Status == "" {
		return nil
	}
	out := make([]render.Unit, 0, len(v.Thread)+5)
	out = append(out, v.Header, v.StatusUnit)
	if v.Summary != nil {
		out = append(out, *v.Summary)
	}
	out = append(out, v.Thread...)
	if v.Overlay != nil {
		out = append(out, *v.Overlay)
	}
	if v.InputRequest != nil {
		out = append(out, *v.InputRequest)
	}
	return out
}

// CanCancel 进行中的 run 可取消。
func (v View) CanCancel() bool { return v.Status.CanCancel }

// AcceptsInput 等待输入时可提交回复。
func (v View) AcceptsInput() bool { return v.Status.InputRequest }

// Cancel 在允许时调用取消回调。
func (v View) Cancel() error {
	if !v.CanCancel() || v.hooks.Cancel == nil {
		return pkgerr.WithCode(pkgerr.ErrNotAllowed, "View.Cancel", pkgerr.CodeNotAllowed,
			"run "+strconv.Quote(string(v.RunID))+" cannot be cancelled in status "+string(v.Status.Status))
	}
	return v.hooks.Cancel(v.RunID)
}

// SubmitInput 在等待输入时转发用户回复。
func (v View) SubmitInput(response string) error {
	if !v.AcceptsInput() || v.hooks.SubmitInput == nil {
		return pkgerr.WithCode(pkgerr.ErrNotAllowed, "View.SubmitInput", pkgerr.CodeNotAllowed,
			"run "+strconv.Quote(string(v.RunID))+" is not awaiting input")
	}
	return v.hooks.SubmitInput(v.RunID, response)
}
