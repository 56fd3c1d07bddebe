// Package termrender 把 runview.View 绘制为终端文本 (lipgloss 样式)。
//
// 只读 View, 不做任何分类或可见性判断; 流式片段用静态光标字符表示。
package termrender

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/multi-agent/run-transcript/internal/render"
	"github.com/multi-agent/run-transcript/internal/runview"
)

// Cursor 流式片段末尾的光标字符。
const Cursor = "▌"

const (
	defaultWidth = 100
	minWidth     = 40
	indentStep   = "  "
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	agentStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	diagnosticStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	toolStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	waitingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Options 终端渲染参数。
type Options struct {
	Width  int              // 0 表示默认宽度
	Expand bool             // 截断单元显示完整内容
	Now    func() time.Time // 相对时间基准, nil 时为 time.Now
}

// Render 按 View.Units() 顺序输出整段文本。
func Render(v runview.View, opts Options) string {
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}
	if width < minWidth {
		width = minWidth
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	p := printer{expand: opts.Expand}

	var b strings.Builder
	b.WriteString(headerStyle.Width(width).Render(headerLine(v, now())))
	b.WriteString("\n")

	var body strings.Builder
	for _, u := range v.Units() {
		if u.Kind == render.UnitStatus {
			body.WriteString(statusLine(v.Status))
			body.WriteString("\n")
			continue
		}
		body.WriteString(p.unit(u, 0))
	}
	b.WriteString(sectionStyle.Width(width - 2).Render(strings.TrimRight(body.String(), "\n")))
	b.WriteString("\n")

	if len(v.ToolCalls) > 0 {
		var tools strings.Builder
		calls := lo.SumBy(v.ToolCalls, func(u render.Unit) int { return u.Count(render.UnitToolCall) })
		tools.WriteString(toolStyle.Render(fmt.Sprintf("Tool activity (%d messages, %d calls)", len(v.ToolCalls), calls)))
		tools.WriteString("\n")
		for _, u := range v.ToolCalls {
			tools.WriteString(p.unit(u, 0))
		}
		b.WriteString(sectionStyle.Width(width - 2).Render(strings.TrimRight(tools.String(), "\n")))
		b.WriteString("\n")
	}
	return b.String()
}

// headerLine run id、相对创建时间与 token 用量。
func headerLine(v runview.View, now time.Time) string {
	parts := []string{"Run " + string(v.RunID)}
	if !v.CreatedAt.IsZero() {
		parts = append(parts, "created "+humanize.RelTime(v.CreatedAt, now, "ago", "from now"))
	}
	parts = append(parts, fmt.Sprintf("%s messages", humanize.Comma(int64(v.VisibleCount))))
	if v.Usage > 0 {
		parts = append(parts, humanize.Comma(int64(v.Usage))+" tokens")
	}
	return strings.Join(parts, " │ ")
}

func statusLine(a runview.Affordance) string {
	switch a.Indicator {
	case runview.IndicatorProgress:
		return waitingStyle.Render("● " + a.Label)
	case runview.IndicatorWaiting:
		return waitingStyle.Render("? " + a.Label)
	case runview.IndicatorSuccess:
		return successStyle.Render("✓ " + a.Label)
	case runview.IndicatorError:
		return errorStyle.Render("✗ " + a.Label)
	case runview.IndicatorStopped:
		return dimStyle.Render("■ " + a.Label)
	default:
		return a.Label
	}
}

type printer struct {
	expand bool
}

// unit 递归绘制单元, 每层缩进两格。
func (p printer) unit(u render.Unit, depth int) string {
	indent := strings.Repeat(indentStep, depth)
	var b strings.Builder
	line := func(s string) {
		b.WriteString(indentBlock(s, indent))
		b.WriteString("\n")
	}
	children := func(d int) {
		for _, c := range u.Children {
			b.WriteString(p.unit(c, d))
		}
	}

	switch u.Kind {
	case render.UnitHeader, render.UnitMessage:
		line(roleLabel(u))
		children(depth + 1)
	case render.UnitText, render.UnitJSON, render.UnitOpaque:
		if u.Label != "" {
			line(dimStyle.Render(u.Label))
		}
		line(p.text(u))
	case render.UnitLog:
		line(diagnosticStyle.Render(u.Label + ": " + p.text(u)))
	case render.UnitImage:
		line(fmt.Sprintf("[image: %s] %s", u.Alt, u.Src))
	case render.UnitToolCall:
		line(toolStyle.Render("⚙ " + u.Label + refSuffix(u.Ref)))
		if t := p.text(u); t != "" {
			line(indentStep + strings.ReplaceAll(t, "\n", "\n"+indentStep))
		}
	case render.UnitToolResult:
		style := successStyle
		if u.Error {
			style = errorStyle
		}
		line(style.Render("↳ " + u.Label + refSuffix(u.Ref)))
		if t := p.text(u); t != "" {
			line(indentStep + strings.ReplaceAll(t, "\n", "\n"+indentStep))
		}
	case render.UnitNestedList:
		line(dimStyle.Render(u.Label))
		children(depth + 1)
	case render.UnitStreaming:
		line(agentStyle.Render(u.Source) + " " + dimStyle.Render("(streaming)"))
		line(indentStep + u.Text + Cursor)
	case render.UnitSummary:
		line(successStyle.Render(u.Label + ": " + u.Text))
		children(depth + 1)
	case render.UnitInputRequest:
		line(waitingStyle.Render("> " + u.Label))
	default:
		if u.Label != "" {
			line(dimStyle.Render(u.Label))
		}
		children(depth)
	}
	return b.String()
}

// text 截断单元在 expand 模式下显示完整内容, 否则附加剩余字符数。
func (p printer) text(u render.Unit) string {
	if !u.Truncated {
		return u.Text
	}
	if p.expand && u.Full != "" {
		return u.Full
	}
	hidden := u.FullLength - len([]rune(strings.TrimSuffix(u.Text, "...")))
	if hidden <= 0 {
		return u.Text
	}
	return u.Text + " " + dimStyle.Render(fmt.Sprintf("(+%s chars)", humanize.Comma(int64(hidden))))
}

func roleLabel(u render.Unit) string {
	name := u.Label
	style := agentStyle
	switch u.Role {
	case render.RoleUser:
		style = userStyle
		if name == "" {
			name = "You"
		}
	case render.RoleDiagnostic:
		style = diagnosticStyle
	}
	out := style.Render(name)
	if u.Tokens != nil {
		out += " " + dimStyle.Render(fmt.Sprintf("[%s tokens]", humanize.Comma(int64(*u.Tokens))))
	}
	return out
}

func refSuffix(ref string) string {
	if ref == "" {
		return ""
	}
	return " (" + ref + ")"
}

// indentBlock 为每一行添加前缀。
func indentBlock(text, indent string) string {
	if indent == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = indent + l
	}
	return strings.Join(lines, "\n")
}
