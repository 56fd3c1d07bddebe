package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	apperrors "github.com/multi-agent/run-transcript/pkg/errors"
	"github.com/multi-agent/run-transcript/pkg/logger"
)

// RunPGStore runs / run_messages 两张表上的 RunStore。
type RunPGStore struct{ BaseStore }

// NewRunPGStore 创建 PostgreSQL run 存储。
func NewRunPGStore(pool *pgxpool.Pool) *RunPGStore {
	return &RunPGStore{NewBaseStore(pool)}
}

type runRow struct {
	ID           string    `db:"id"`
	Status       string    `db:"status"`
	Task         []byte    `db:"task"`
	TeamResult   []byte    `db:"team_result"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
}

type messageRow struct {
	Seq       int        `db:"seq"`
	MessageID string     `db:"message_id"`
	Config    []byte     `db:"config"`
	CreatedAt *time.Time `db:"created_at"`
}

const (
	// upsertRunSQL 已是终态的行不再被覆盖, 此时 RowsAffected 为 0。
	upsertRunSQL = `
		INSERT INTO runs (id, status, task, task_text, team_result, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			task = EXCLUDED.task,
			task_text = EXCLUDED.task_text,
			team_result = EXCLUDED.team_result,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
		WHERE runs.status NOT IN ('complete', 'error', 'stopped')`

	trimMessagesSQL = `DELETE FROM run_messages WHERE run_id = $1 AND seq >= $2`

	// upsertMessageSQL 只改写内容变化的行。
	upsertMessageSQL = `
		INSERT INTO run_messages (run_id, seq, message_id, source, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, seq) DO UPDATE SET
			message_id = EXCLUDED.message_id,
			source = EXCLUDED.source,
			config = EXCLUDED.config,
			created_at = EXCLUDED.created_at
		WHERE (run_messages.message_id, run_messages.source, run_messages.config)
			IS DISTINCT FROM (EXCLUDED.message_id, EXCLUDED.source, EXCLUDED.config)`
)

// SaveRun 事务内把库中 run 同步为快照: upsert run 行, 删除超出快照长度的消息,
// 按 seq upsert 其余消息。库中已是终态的 run 保持不变。
func (s *RunPGStore) SaveRun(ctx context.Context, run *datamodel.Run) error {
	if run == nil || run.ID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "RunPGStore.SaveRun", "run id is required")
	}
	var teamResult []byte
	if run.TeamResult != nil {
		teamResult = mustMarshalJSON(run.TeamResult)
	}
	createdAt := run.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.WithCode(err, "RunPGStore.SaveRun", apperrors.CodeStore, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, upsertRunSQL, string(run.ID), string(run.Status), mustMarshalJSON(run.Task),
		TaskPreview(run.Task), teamResult, run.ErrorMessage, createdAt)
	if err != nil {
		return apperrors.WithCode(err, "RunPGStore.SaveRun", apperrors.CodeStore, "upsert run")
	}
	if tag.RowsAffected() == 0 {
		logger.Debug("run store: keep finished run", logger.FieldRunID, run.ID, logger.FieldStatus, run.Status)
		return nil
	}

	if _, err := tx.Exec(ctx, trimMessagesSQL, string(run.ID), len(run.Messages)); err != nil {
		return apperrors.WithCode(err, "RunPGStore.SaveRun", apperrors.CodeStore, "trim messages")
	}
	if len(run.Messages) > 0 {
		batch := &pgx.Batch{}
		for seq, m := range run.Messages {
			var at *time.Time
			if !m.CreatedAt.IsZero() {
				t := m.CreatedAt.Time
				at = &t
			}
			batch.Queue(upsertMessageSQL, string(run.ID), seq, string(m.ID), m.Config.Source, mustMarshalJSON(m.Config), at)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return apperrors.WithCode(err, "RunPGStore.SaveRun", apperrors.CodeStore, "write messages")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.WithCode(err, "RunPGStore.SaveRun", apperrors.CodeStore, "commit")
	}
	return nil
}

// GetRun 读取完整 run (含消息); 不存在时返回 ErrNotFound。
func (s *RunPGStore) GetRun(ctx context.Context, id datamodel.ID) (*datamodel.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, task, team_result, error_message, created_at
		FROM runs WHERE id = $1
	`, string(id))
	if err != nil {
		return nil, apperrors.WithCode(err, "RunPGStore.GetRun", apperrors.CodeStore, "query run")
	}
	row, err := collectOne[runRow](rows)
	if err != nil {
		return nil, apperrors.WithCode(err, "RunPGStore.GetRun", apperrors.CodeStore, "scan run")
	}
	if row == nil {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "RunPGStore.GetRun", "run %s", id)
	}

	run, err := row.toRun()
	if err != nil {
		return nil, err
	}

	msgRows, err := s.pool.Query(ctx, `
		SELECT seq, message_id, config, created_at
		FROM run_messages WHERE run_id = $1 ORDER BY seq
	`, string(id))
	if err != nil {
		return nil, apperrors.WithCode(err, "RunPGStore.GetRun", apperrors.CodeStore, "query messages")
	}
	msgs, err := collectRows[messageRow](msgRows)
	if err != nil {
		return nil, apperrors.WithCode(err, "RunPGStore.GetRun", apperrors.CodeStore, "scan messages")
	}
	run.Messages = make([]datamodel.Message, 0, len(msgs))
	for _, m := range msgs {
		var cfg datamodel.AgentMessageConfig
		if err := json.Unmarshal(m.Config, &cfg); err != nil {
			logger.Warn("run store: skip malformed message",
				logger.FieldRunID, id, "seq", m.Seq, logger.FieldError, err)
			continue
		}
		msg := datamodel.Message{ID: datamodel.ID(m.MessageID), RunID: id, Config: cfg}
		if m.CreatedAt != nil {
			msg.CreatedAt = datamodel.NewTimestamp(*m.CreatedAt)
		}
		run.Messages = append(run.Messages, msg)
	}
	return run, nil
}

func (r *runRow) toRun() (*datamodel.Run, error) {
	run := &datamodel.Run{
		ID:           datamodel.ID(r.ID),
		CreatedAt:    datamodel.NewTimestamp(r.CreatedAt),
		Status:       datamodel.RunStatus(r.Status),
		ErrorMessage: r.ErrorMessage,
	}
	if len(r.Task) > 0 {
		if err := json.Unmarshal(r.Task, &run.Task); err != nil {
			return nil, apperrors.Wrapf(err, "RunPGStore.GetRun", "decode task of %s", r.ID)
		}
	}
	if len(r.TeamResult) > 0 && string(r.TeamResult) != "null" {
		var tr datamodel.TeamResult
		if err := json.Unmarshal(r.TeamResult, &tr); err != nil {
			return nil, apperrors.Wrapf(err, "RunPGStore.GetRun", "decode team_result of %s", r.ID)
		}
		run.TeamResult = &tr
	}
	return run, nil
}

// listRunsQuery 按状态与关键词 (任务摘要 / 错误信息) 组装列表查询, 附带消息数。
func listRunsQuery(q RunQuery) (string, []any) {
	return NewQueryBuilder().
		Eq("r.status", q.Status).
		KeywordLike(q.Keyword, "r.task_text", "r.error_message").
		Build(`
		SELECT r.id, r.status, r.task_text, r.error_message, r.created_at, r.updated_at,
			(SELECT COUNT(*) FROM run_messages m WHERE m.run_id = r.id) AS message_count
		FROM runs r`, "r.created_at DESC, r.id DESC", q.Limit)
}

// ListRuns 按创建时间倒序列出摘要。
func (s *RunPGStore) ListRuns(ctx context.Context, q RunQuery) ([]RunSummary, error) {
	sql, params := listRunsQuery(q)
	rows, err := s.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, apperrors.WithCode(err, "RunPGStore.ListRuns", apperrors.CodeStore, "query runs")
	}
	out, err := collectRows[RunSummary](rows)
	if err != nil {
		return nil, apperrors.WithCode(err, "RunPGStore.ListRuns", apperrors.CodeStore, "scan runs")
	}
	return out, nil
}

// DeleteRun 删除 run, 消息随外键级联删除。
func (s *RunPGStore) DeleteRun(ctx context.Context, id datamodel.ID) error {
	n, err := s.DeleteByKey(ctx, "runs", "id", string(id))
	if err != nil {
		return apperrors.WithCode(err, "RunPGStore.DeleteRun", apperrors.CodeStore, "delete run")
	}
	if n == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "RunPGStore.DeleteRun", "run %s", id)
	}
	return nil
}

// LoadRecent 读取最近 limit 个 run 的完整快照, 用于启动时恢复会话。
func (s *RunPGStore) LoadRecent(ctx context.Context, limit int) ([]*datamodel.Run, error) {
	summaries, err := s.ListRuns(ctx, RunQuery{Limit: limit})
	if err != nil {
		return nil, err
	}
	runs := make([]*datamodel.Run, 0, len(summaries))
	for _, sum := range summaries {
		run, err := s.GetRun(ctx, datamodel.ID(sum.ID))
		if err != nil {
			if stderrors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Statuses 返回库中出现过的状态值。
func (s *RunPGStore) Statuses(ctx context.Context) ([]string, error) {
	values, err := DistinctValues(ctx, s.pool, "runs", "status")
	if err != nil {
		return nil, apperrors.WithCode(err, "RunPGStore.Statuses", apperrors.CodeStore, "distinct status")
	}
	return values, nil
}
