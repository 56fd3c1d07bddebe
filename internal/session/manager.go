// Package session 保存进行中 run 的快照与流式片段。
//
// Manager 是引擎外部的宿主状态: 由 RWMutex 保护, 对外只返回深拷贝,
// 流式片段按 run id 分区, 消息提交或进入终态时清除对应片段。
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/runview"
	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
	"github.com/multi-agent/run-transcript/pkg/logger"
)

// Store run 持久化接口; nil 时仅保存在内存。
type Store interface {
	SaveRun(ctx context.Context, run *datamodel.Run) error
}

// Update 变更通知。
type Update struct {
	RunID datamodel.ID `json:"run_id"`
	Kind  EventKind    `json:"kind"`
}

// Manager run 会话管理器。
type Manager struct {
	mu sync.RWMutex // 保护 runs/fragments/listeners

	runs      map[datamodel.ID]*datamodel.Run
	fragments map[datamodel.ID]*datamodel.StreamingFragment
	persist   map[datamodel.ID]*persistState
	listeners map[uint64]func(Update)
	nextID    uint64

	store Store
	now   func() time.Time
}

// persistState 单个 run 的持久化顺序: mu 串行化 SaveRun,
// version 为内存版本号, saved 为最后写入存储的版本。
type persistState struct {
	mu      sync.Mutex
	version uint64
	saved   uint64
}

// NewManager 创建管理器。store 可为 nil。
func NewManager(store Store) *Manager {
	return &Manager{
		runs:      map[datamodel.ID]*datamodel.Run{},
		fragments: map[datamodel.ID]*datamodel.StreamingFragment{},
		persist:   map[datamodel.ID]*persistState{},
		listeners: map[uint64]func(Update){},
		store:     store,
		now:       time.Now,
	}
}

// Subscribe 注册变更监听, 返回取消函数。监听在锁外同步调用。
func (m *Manager) Subscribe(fn func(Update)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Hydrate 启动时从存储恢复 run, 不触发通知与持久化。
func (m *Manager) Hydrate(runs []*datamodel.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range runs {
		if r == nil || r.ID == "" {
			continue
		}
		m.runs[r.ID] = r.Clone()
	}
}

// Run 返回 run 快照 (深拷贝)。
func (m *Manager) Run(id datamodel.ID) (*datamodel.Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Fragment 返回 run 当前的流式片段, 不存在时为 nil。
func (m *Manager) Fragment(id datamodel.ID) *datamodel.StreamingFragment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fragments[id].Clone()
}

// Snapshot 同时返回 run 与片段, 保证两者来自同一时刻。
func (m *Manager) Snapshot(id datamodel.ID) (*datamodel.Run, *datamodel.StreamingFragment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, nil, false
	}
	return r.Clone(), m.fragments[id].Clone(), true
}

// List 按创建时间倒序返回全部 run 快照。
func (m *Manager) List() []*datamodel.Run {
	m.mu.RLock()
	out := make([]*datamodel.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r.Clone())
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Remove 删除 run 及其片段。
func (m *Manager) Remove(id datamodel.ID) bool {
	m.mu.Lock()
	_, ok := m.runs[id]
	delete(m.runs, id)
	delete(m.fragments, id)
	delete(m.persist, id)
	m.mu.Unlock()
	return ok
}

// Upsert 用完整快照替换 run。终态 run 不再接受任何快照;
// 快照中新提交的消息与片段来源匹配时清除片段。
func (m *Manager) Upsert(ctx context.Context, run *datamodel.Run) error {
	if run == nil || run.ID == "" {
		return pkgerr.Wrap(pkgerr.ErrInvalidInput, "Manager.Upsert", "run id required")
	}
	if !run.Status.Valid() {
		return datamodel.UnknownStatusError("Manager.Upsert", string(run.Status))
	}

	m.mu.Lock()
	committed := 0
	if prev, ok := m.runs[run.ID]; ok {
		if err := checkMutable("Manager.Upsert", prev, run.Status); err != nil {
			m.mu.Unlock()
			return err
		}
		committed = len(prev.Messages)
	}
	next := run.Clone()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = datamodel.NewTimestamp(m.now())
	}
	m.runs[run.ID] = next
	if next.Status.IsTerminal() {
		delete(m.fragments, run.ID)
	} else if frag := m.fragments[run.ID]; frag != nil && committed < len(next.Messages) {
		for _, msg := range next.Messages[committed:] {
			if fragmentCommitted(frag, msg) {
				delete(m.fragments, run.ID)
				break
			}
		}
	}
	ver, ps := m.bumpLocked(run.ID)
	saved := next.Clone()
	m.mu.Unlock()

	return m.commit(ctx, saved, EventRun, ps, ver)
}

// AppendMessage 追加已提交消息; 来源匹配的流式片段随之清除。
// run 不存在时以 active 状态创建。
func (m *Manager) AppendMessage(ctx context.Context, runID datamodel.ID, msg datamodel.Message) error {
	if runID == "" {
		return pkgerr.Wrap(pkgerr.ErrInvalidInput, "Manager.AppendMessage", "run id required")
	}

	m.mu.Lock()
	run := m.ensureRunLocked(runID)
	if run.Status.IsTerminal() {
		m.mu.Unlock()
		return pkgerr.WithCode(pkgerr.ErrNotAllowed, "Manager.AppendMessage", pkgerr.CodeNotAllowed,
			"run "+string(runID)+" is "+string(run.Status))
	}
	msg.RunID = runID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = datamodel.NewTimestamp(m.now())
	}
	msg.Config = msg.Config.Clone()
	run.Messages = append(run.Messages, msg)
	if frag := m.fragments[runID]; frag != nil && fragmentCommitted(frag, msg) {
		delete(m.fragments, runID)
	}
	ver, ps := m.bumpLocked(runID)
	saved := run.Clone()
	m.mu.Unlock()

	return m.commit(ctx, saved, EventMessage, ps, ver)
}

// AppendChunk 累积流式增量。终态 run 的增量静默丢弃; 来源变化时片段重置。
func (m *Manager) AppendChunk(runID datamodel.ID, source, delta string) {
	if runID == "" {
		return
	}
	m.mu.Lock()
	run := m.ensureRunLocked(runID)
	if run.Status.IsTerminal() {
		m.mu.Unlock()
		logger.Debug("session: drop chunk for finished run", logger.FieldRunID, runID, logger.FieldSource, source, logger.FieldStatus, run.Status)
		return
	}
	frag := m.fragments[runID]
	if frag == nil || frag.Source != source {
		frag = &datamodel.StreamingFragment{RunID: runID, Source: source}
		m.fragments[runID] = frag
	}
	frag.Content += delta
	m.mu.Unlock()

	m.notify(Update{RunID: runID, Kind: EventChunk})
}

// SetStatus 变更状态 (run 不存在时先创建)。终态 run 拒绝变更 (ErrInvalidTransition), 进入终态时清除片段。
func (m *Manager) SetStatus(ctx context.Context, runID datamodel.ID, status datamodel.RunStatus, errMsg string) error {
	if runID == "" {
		return pkgerr.Wrap(pkgerr.ErrInvalidInput, "Manager.SetStatus", "run id required")
	}
	if !status.Valid() {
		return datamodel.UnknownStatusError("Manager.SetStatus", string(status))
	}
	m.mu.Lock()
	run := m.ensureRunLocked(runID)
	if err := checkMutable("Manager.SetStatus", run, status); err != nil {
		m.mu.Unlock()
		logger.Warn("session: status change rejected",
			logger.FieldRunID, runID,
			logger.FieldFrom, run.Status,
			logger.FieldTo, status,
			logger.FieldError, err)
		return err
	}
	run.Status = status
	if errMsg != "" {
		run.ErrorMessage = errMsg
	}
	if status.IsTerminal() {
		delete(m.fragments, runID)
	}
	ver, ps := m.bumpLocked(runID)
	saved := run.Clone()
	m.mu.Unlock()

	return m.commit(ctx, saved, EventStatus, ps, ver)
}

// SetResult 记录最终结果并转入 status (通常为 complete)。
func (m *Manager) SetResult(ctx context.Context, runID datamodel.ID, result datamodel.TeamResult, status datamodel.RunStatus) error {
	if runID == "" {
		return pkgerr.Wrap(pkgerr.ErrInvalidInput, "Manager.SetResult", "run id required")
	}
	if !status.Valid() {
		return datamodel.UnknownStatusError("Manager.SetResult", string(status))
	}
	m.mu.Lock()
	run := m.ensureRunLocked(runID)
	if err := checkMutable("Manager.SetResult", run, status); err != nil {
		m.mu.Unlock()
		return err
	}
	run.TeamResult = result.Clone()
	run.Status = status
	if status.IsTerminal() {
		delete(m.fragments, runID)
	}
	ver, ps := m.bumpLocked(runID)
	saved := run.Clone()
	m.mu.Unlock()

	return m.commit(ctx, saved, EventResult, ps, ver)
}

// Apply 分派一个后端事件。未知事件类型忽略并返回 nil。
func (m *Manager) Apply(ctx context.Context, ev Event) error {
	kind := classifyEvent(ev.Type)
	switch kind {
	case EventRun:
		run, err := decodeRun(ev.Data)
		if err != nil {
			return err
		}
		if run.ID == "" {
			run.ID = ev.RunID
		}
		return m.Upsert(ctx, run)

	case EventMessage:
		msg, err := decodeMessage(ev.Data)
		if err != nil {
			return err
		}
		return m.AppendMessage(ctx, ev.RunID, msg)

	case EventChunk:
		c := decodeChunk(ev.Data)
		m.AppendChunk(ev.RunID, c.Source, c.Content)
		return nil

	case EventStatus:
		st, err := decodeStatus(ev.Data)
		if err != nil {
			return err
		}
		return m.SetStatus(ctx, ev.RunID, st.Status, st.ErrorMessage)

	case EventResult:
		res, err := decodeResult(ev.Data)
		if err != nil {
			return err
		}
		return m.SetResult(ctx, ev.RunID, res.Result, res.Status)

	case EventError:
		return m.SetStatus(ctx, ev.RunID, datamodel.StatusError, errorText(ev.Data))

	case EventInputRequest:
		return m.SetStatus(ctx, ev.RunID, datamodel.StatusAwaitingInput, "")

	default:
		logger.Debug("session: ignore unknown event", logger.FieldEventType, ev.Type, logger.FieldRunID, ev.RunID)
		return nil
	}
}

// ensureRunLocked 返回 run, 不存在时创建 active run。调用方持有写锁。
func (m *Manager) ensureRunLocked(id datamodel.ID) *datamodel.Run {
	if r, ok := m.runs[id]; ok {
		return r
	}
	r := &datamodel.Run{
		ID:        id,
		Status:    datamodel.StatusActive,
		CreatedAt: datamodel.NewTimestamp(m.now()),
		Messages:  []datamodel.Message{},
	}
	m.runs[id] = r
	return r
}

// checkMutable 终态 run 不再变化 (包括相同终态的重复写入)。
func checkMutable(op string, run *datamodel.Run, to datamodel.RunStatus) error {
	if run.Status.IsTerminal() {
		return pkgerr.WithCode(pkgerr.ErrInvalidTransition, op, pkgerr.CodeInvalidTransition,
			"run "+string(run.ID)+" is "+string(run.Status))
	}
	return runview.CanTransition(run.Status, to)
}

// fragmentCommitted 已提交消息是否对应当前片段。
func fragmentCommitted(frag *datamodel.StreamingFragment, msg datamodel.Message) bool {
	return frag.Source == "" || frag.Source == msg.Config.Source
}

// bumpLocked 递增 run 的内存版本号。调用方持有写锁。
func (m *Manager) bumpLocked(id datamodel.ID) (uint64, *persistState) {
	ps := m.persist[id]
	if ps == nil {
		ps = &persistState{}
		m.persist[id] = ps
	}
	ps.version++
	return ps.version, ps
}

// commit 持久化并通知。同一 run 的写入串行执行, 落后于已写入版本的快照跳过,
// 存储中的状态因此不会回退。持久化失败只记录日志, 内存状态仍然生效。
func (m *Manager) commit(ctx context.Context, run *datamodel.Run, kind EventKind, ps *persistState, ver uint64) error {
	if m.store != nil {
		ps.mu.Lock()
		if ver > ps.saved {
			ps.saved = ver
			if err := m.store.SaveRun(ctx, run); err != nil {
				logger.FromContext(ctx).Error("session: persist run failed",
					logger.FieldRunID, run.ID,
					logger.FieldError, err)
			}
		} else {
			logger.Debug("session: skip stale snapshot", logger.FieldRunID, run.ID, logger.FieldVersion, ver)
		}
		ps.mu.Unlock()
	}
	m.notify(Update{RunID: run.ID, Kind: kind})
	return nil
}

func (m *Manager) notify(u Update) {
	m.mu.RLock()
	fns := make([]func(Update), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(u)
	}
}
