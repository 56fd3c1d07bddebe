package runview

import (
	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/render"
	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
)

// Indicator 状态指示器类型。
type Indicator string

const (
	IndicatorProgress Indicator = "progress"
	IndicatorWaiting  Indicator = "waiting"
	IndicatorSuccess  Indicator = "success"
	IndicatorError    Indicator = "error"
	IndicatorStopped  Indicator = "stopped"
)

// DefaultErrorLabel error 状态缺少 error_message 时的提示。
const DefaultErrorLabel = "An error occurred"

// InputPrompt 输入框提示文本。
const InputPrompt = "Type your response..."

// Affordance 状态对应的界面能力。
type Affordance struct {
	Status       datamodel.RunStatus `json:"status"`
	Indicator    Indicator           `json:"indicator"`
	Label        string              `json:"label"`
	CanCancel    bool                `json:"can_cancel"`
	InputRequest bool                `json:"input_request"`
	ShowSummary  bool                `json:"show_summary"`
}

// Affordances 状态 → 能力 映射表。未知状态返回 ErrUnknownStatus。
func Affordances(status datamodel.RunStatus) (Affordance, error) {
	a := Affordance{Status: status}
	switch status {
	case datamodel.StatusActive:
		a.Indicator, a.Label, a.CanCancel = IndicatorProgress, "Task running ...", true
	case datamodel.StatusAwaitingInput:
		a.Indicator, a.Label, a.CanCancel, a.InputRequest = IndicatorWaiting, "Waiting for your input", true, true
	case datamodel.StatusComplete:
		a.Indicator, a.Label, a.ShowSummary = IndicatorSuccess, "Task complete", true
	case datamodel.StatusError:
		a.Indicator, a.Label, a.ShowSummary = IndicatorError, DefaultErrorLabel, true
	case datamodel.StatusStopped:
		a.Indicator, a.Label, a.ShowSummary = IndicatorStopped, "Task stopped", true
	default:
		return Affordance{}, datamodel.UnknownStatusError("runview.Affordances", string(status))
	}
	return a, nil
}

// ForRun 同 Affordances, error 状态使用 run 自身的错误信息。
func ForRun(run *datamodel.Run) (Affordance, error) {
	if run == nil {
		return Affordance{}, pkgerr.Wrap(pkgerr.ErrInvalidInput, "runview.ForRun", "nil run")
	}
	a, err := Affordances(run.Status)
	if err != nil {
		return Affordance{}, err
	}
	if run.Status == datamodel.StatusError && run.ErrorMessage != "" {
		a.Label = run.ErrorMessage
	}
	return a, nil
}

// CanTransition 校验状态变更: 终态不再变化, 相同状态视为无操作。
func CanTransition(from, to datamodel.RunStatus) error {
	if !to.Valid() {
		return datamodel.UnknownStatusError("runview.CanTransition", string(to))
	}
	if from == "" || from == to {
		return nil
	}
	if !from.Valid() {
		return datamodel.UnknownStatusError("runview.CanTransition", string(from))
	}
	if from.IsTerminal() {
		return pkgerr.WithCode(pkgerr.ErrInvalidTransition, "runview.CanTransition",
			pkgerr.CodeInvalidTransition, string(from)+" -> "+string(to))
	}
	return nil
}

// TerminalSummary 终态摘要: 停止原因, 其后为最后一条有意义消息;
// 没有可见消息时退回最终结果的最后一条消息。两者都没有且无停止原因时返回 nil。
func TerminalSummary(run *datamodel.Run, visible []datamodel.Message, rctx render.Context) *render.Unit {
	u := render.Unit{Key: "summary", Kind: render.UnitSummary, Label: "Stop reason", Text: run.StopReason()}

	ctx := rctx
	ctx.Key = "summary/message"
	ctx.IsLast = true
	if last := LastMeaningful(visible); last != nil {
		u.Children = append(u.Children, render.RenderMessage(last.Config, ctx))
	} else if msg, ok := run.LastTeamResultMessage(); ok {
		u.Children = append(u.Children, render.RenderMessage(msg, ctx))
	}

	if u.Text == "" && len(u.Children) == 0 {
		return nil
	}
	return &u
}
