package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	apperrors "github.com/multi-agent/run-transcript/pkg/errors"
	"github.com/multi-agent/run-transcript/pkg/util"
)

type memoryEntry struct {
	run       *datamodel.Run
	taskText  string
	updatedAt time.Time
}

// MemoryRunStore 进程内 RunStore, 无数据库时使用。
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[datamodel.ID]*memoryEntry
	now  func() time.Time
}

// NewMemoryRunStore 创建内存存储。
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: map[datamodel.ID]*memoryEntry{}, now: time.Now}
}

// SaveRun 保存 run 深拷贝。已是终态的 run 保持不变。
func (s *MemoryRunStore) SaveRun(_ context.Context, run *datamodel.Run) error {
	if run == nil || run.ID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "MemoryRunStore.SaveRun", "run id is required")
	}
	entry := &memoryEntry{run: run.Clone(), taskText: TaskPreview(run.Task)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.runs[run.ID]; ok && prev.run.Status.IsTerminal() {
		return nil
	}
	entry.updatedAt = s.now().UTC()
	s.runs[run.ID] = entry
	return nil
}

// GetRun 返回 run 深拷贝; 不存在时返回 ErrNotFound。
func (s *MemoryRunStore) GetRun(_ context.Context, id datamodel.ID) (*datamodel.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[id]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "MemoryRunStore.GetRun", "run %s", id)
	}
	return e.run.Clone(), nil
}

// ListRuns 按创建时间倒序列出摘要。
func (s *MemoryRunStore) ListRuns(_ context.Context, q RunQuery) ([]RunSummary, error) {
	kw := strings.ToLower(strings.TrimSpace(q.Keyword))
	s.mu.RLock()
	entries := lo.Filter(lo.Values(s.runs), func(e *memoryEntry, _ int) bool {
		if q.Status != "" && string(e.run.Status) != q.Status {
			return false
		}
		if kw == "" {
			return true
		}
		return strings.Contains(strings.ToLower(e.taskText), kw) ||
			strings.Contains(strings.ToLower(e.run.ErrorMessage), kw)
	})
	out := lo.Map(entries, func(e *memoryEntry, _ int) RunSummary {
		return RunSummary{
			ID:           string(e.run.ID),
			Status:       string(e.run.Status),
			TaskText:     e.taskText,
			ErrorMessage: e.run.ErrorMessage,
			CreatedAt:    e.run.CreatedAt.Time,
			UpdatedAt:    e.updatedAt,
			MessageCount: int64(len(e.run.Messages)),
		}
	})
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	limit := util.ClampInt(q.Limit, 1, 2000)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteRun 删除 run, 不存在时返回 ErrNotFound。
func (s *MemoryRunStore) DeleteRun(_ context.Context, id datamodel.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "MemoryRunStore.DeleteRun", "run %s", id)
	}
	delete(s.runs, id)
	return nil
}

// LoadRecent 返回最近 limit 个 run 的完整快照。
func (s *MemoryRunStore) LoadRecent(ctx context.Context, limit int) ([]*datamodel.Run, error) {
	summaries, err := s.ListRuns(ctx, RunQuery{Limit: limit})
	if err != nil {
		return nil, err
	}
	runs := make([]*datamodel.Run, 0, len(summaries))
	for _, sum := range summaries {
		if r, err := s.GetRun(ctx, datamodel.ID(sum.ID)); err == nil {
			runs = append(runs, r)
		}
	}
	return runs, nil
}

// Statuses 返回已出现的状态值 (筛选器用)。
func (s *MemoryRunStore) Statuses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	values := lo.Uniq(lo.MapToSlice(s.runs, func(_ datamodel.ID, e *memoryEntry) string {
		return string(e.run.Status)
	}))
	s.mu.RUnlock()
	values = lo.Compact(values)
	sort.Strings(values)
	return values, nil
}
