package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	apperrors "github.com/multi-agent/run-transcript/pkg/errors"
)

func TestRunPGStore(t *testing.T) {
	pool := getTestPool(t)
	defer pool.Close()

	s := NewRunPGStore(pool)
	ctx := context.Background()
	id := datamodel.ID("test-run-" + time.Now().Format("150405.000000"))
	defer s.DeleteRun(ctx, id)

	run := newRun(string(id), datamodel.StatusActive, "Find flights to Paris", time.Now())
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	// 快照缩短并改写消息: 库中行随之同步。
	rewritten := newRun(string(id), datamodel.StatusActive, "Find flights to Paris", time.Now())
	rewritten.Messages[0].Config.Content = "step one (revised)"
	if err := s.SaveRun(ctx, rewritten); err != nil {
		t.Fatalf("SaveRun (rewrite): %v", err)
	}
	run.Messages = append(run.Messages, datamodel.Message{
		Config: datamodel.AgentMessageConfig{Source: "critic", Content: "looks good"},
	})
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun (append): %v", err)
	}
	shorter := rewritten.Clone()
	if err := s.SaveRun(ctx, shorter); err != nil {
		t.Fatalf("SaveRun (shorten): %v", err)
	}
	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Config.Content != "step one (revised)" {
		t.Fatalf("messages after shorter snapshot = %+v", got.Messages)
	}

	run.Status = datamodel.StatusComplete
	run.TeamResult = &datamodel.TeamResult{TaskResult: datamodel.TaskResult{StopReason: "done"}}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun (update): %v", err)
	}

	// 终态行不被旧快照覆盖。
	if err := s.SaveRun(ctx, shorter); err != nil {
		t.Fatalf("SaveRun (stale): %v", err)
	}
	got, err = s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != datamodel.StatusComplete || len(got.Messages) != 2 {
		t.Fatalf("GetRun = status %s, %d messages", got.Status, len(got.Messages))
	}
	if got.StopReason() != "done" {
		t.Fatalf("StopReason = %q", got.StopReason())
	}

	list, err := s.ListRuns(ctx, RunQuery{Keyword: "paris", Status: "complete", Limit: 50})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	found := false
	for _, sum := range list {
		if sum.ID == string(id) {
			found = true
			if sum.MessageCount != 2 {
				t.Fatalf("MessageCount = %d, want 2", sum.MessageCount)
			}
		}
	}
	if !found {
		t.Fatalf("ListRuns did not return %s", id)
	}

	if err := s.DeleteRun(ctx, id); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("GetRun after delete = %v, want ErrNotFound", err)
	}
}
