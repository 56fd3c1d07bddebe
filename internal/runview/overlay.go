package runview

import (
	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/render"
)

// OverlayVisible 片段属于当前 run 且 run 未结束时才显示。
func OverlayVisible(run *datamodel.Run, frag *datamodel.StreamingFragment) bool {
	return run != nil && frag.Matches(run.ID) && run.Status.InProgress()
}

// Overlay 返回流式片段的尾部单元; 不满足条件时静默丢弃并返回 nil。
func Overlay(run *datamodel.Run, frag *datamodel.StreamingFragment) *render.Unit {
	if !OverlayVisible(run, frag) {
		return nil
	}
	return &render.Unit{
		Key:    "overlay",
		Kind:   render.UnitStreaming,
		Label:  frag.Source,
		Source: frag.Source,
		Role:   render.RoleAgent,
		Text:   frag.Content,
	}
}
