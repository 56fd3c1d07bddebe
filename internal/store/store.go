// Package store run 转录与界面偏好的持久化。
//
// 裸写 SQL (pgx), 无连接池时退化为进程内存储。
package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/multi-agent/run-transcript/internal/content"
	"github.com/multi-agent/run-transcript/internal/datamodel"
)

// taskPreviewRunes 列表页任务摘要长度上限。
const taskPreviewRunes = 200

// RunQuery 列表查询条件。
type RunQuery struct {
	Status  string `json:"status,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// RunSummary 列表页的 run 摘要。
type RunSummary struct {
	ID           string    `db:"id" json:"id"`
	Status       string    `db:"status" json:"status"`
	TaskText     string    `db:"task_text" json:"task_text"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	MessageCount int64     `db:"message_count" json:"message_count"`
}

// RunStore run 持久化接口。
type RunStore interface {
	SaveRun(ctx context.Context, run *datamodel.Run) error
	GetRun(ctx context.Context, id datamodel.ID) (*datamodel.Run, error)
	ListRuns(ctx context.Context, q RunQuery) ([]RunSummary, error)
	DeleteRun(ctx context.Context, id datamodel.ID) error
	LoadRecent(ctx context.Context, limit int) ([]*datamodel.Run, error)
	Statuses(ctx context.Context) ([]string, error)
}

// New 按连接池选择实现: pool 为 nil 时返回内存存储。
func New(pool *pgxpool.Pool) RunStore {
	if pool == nil {
		return NewMemoryRunStore()
	}
	return NewRunPGStore(pool)
}

// TaskPreview 把任务内容压缩为单行摘要, 供列表与关键词检索使用。
func TaskPreview(task datamodel.AgentMessageConfig) string {
	v := content.Classify(task.Content)
	var text string
	if v.Kind == content.KindPlainText {
		text = v.Text
	} else {
		text = content.StringifyCompact(task.Content)
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > taskPreviewRunes {
		text = string(r[:taskPreviewRunes]) + "..."
	}
	return text
}
