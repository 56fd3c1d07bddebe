package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// LogEntry 对应 server_logs 表的一行。
type LogEntry struct {
	Ts        time.Time
	Level     string
	Message   string
	Source    string
	RunID     string
	Conn      string
	EventType string
	Error     string
	Extra     map[string]any
}

// ========================================
// DBHandler: slog.Handler → PG 异步批量写入
// ========================================

const (
	bufSize    = 1024
	batchSize  = 100
	flushDelay = 500 * time.Millisecond
)

const insertLogSQL = `INSERT INTO server_logs
	(ts, level, message, source, run_id, conn, event_type, error, extra)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// BatchSender 批量执行 SQL (*pgxpool.Pool 满足)。
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DBHandler 实现 slog.Handler, 将日志异步批量写入 server_logs 表。
type DBHandler struct {
	db    BatchSender
	buf   chan LogEntry
	attrs []slog.Attr
	level slog.Level
	done  chan struct{}
	// closed 在 WithAttrs/WithGroup 克隆间共享, shutdown 后不再写入已关闭通道。
	closed *atomic.Bool
}

// NewDBHandler 创建并启动后台写入 goroutine。
func NewDBHandler(db BatchSender, level slog.Level) *DBHandler {
	h := &DBHandler{
		db:     db,
		buf:    make(chan LogEntry, bufSize),
		level:  level,
		done:   make(chan struct{}),
		closed: &atomic.Bool{},
	}
	go h.consumeLoop()
	return h
}

// Enabled 实现 slog.Handler。
func (h *DBHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle 实现 slog.Handler: 构造 LogEntry 推入异步缓冲, 缓冲满时丢弃。
func (h *DBHandler) Handle(_ context.Context, r slog.Record) error {
	if h.closed != nil && h.closed.Load() {
		return nil
	}

	entry := LogEntry{
		Ts:      r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	for _, a := range h.attrs {
		applyAttr(&entry, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		applyAttr(&entry, a)
		return true
	})

	func() {
		defer func() {
			// shutdown 与写入竞争时通道可能已关闭
			_ = recover()
		}()
		select {
		case h.buf <- entry:
		default:
		}
	}()
	return nil
}

// WithAttrs 实现 slog.Handler。
func (h *DBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	clone := *h
	clone.attrs = newAttrs
	return &clone
}

// WithGroup 实现 slog.Handler。server_logs 不区分分组。
func (h *DBHandler) WithGroup(_ string) slog.Handler {
	clone := *h
	return &clone
}

// Shutdown 停止后台 goroutine 并 flush 剩余日志。
func (h *DBHandler) Shutdown() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	close(h.buf)
	<-h.done
}

// consumeLoop 后台批量消费缓冲, 满 batchSize 或每 flushDelay 写入一次。
func (h *DBHandler) consumeLoop() {
	defer close(h.done)

	batch := make([]LogEntry, 0, batchSize)
	ticker := time.NewTicker(flushDelay)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-h.buf:
			if !ok {
				if len(batch) > 0 {
					h.flush(batch)
				}
				return
			}
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush 一次 pgx.Batch 写入; 失败只输出到原日志器。
func (h *DBHandler) flush(entries []LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, e := range entries {
		var extra []byte
		if len(e.Extra) > 0 {
			var err error
			if extra, err = json.Marshal(e.Extra); err != nil {
				extra = nil
			}
		}
		batch.Queue(insertLogSQL, e.Ts, e.Level, e.Message, e.Source, e.RunID, e.Conn, e.EventType, e.Error, extra)
	}
	if err := h.db.SendBatch(ctx, batch).Close(); err != nil {
		fallbackLogger().Warn("db_handler: flush failed", FieldCount, len(entries), FieldError, err)
	}
}

// applyAttr 将 slog.Attr 映射到 LogEntry 的列; 其余进入 extra。
func applyAttr(e *LogEntry, a slog.Attr) {
	v := a.Value.Resolve()
	switch a.Key {
	case FieldSource:
		e.Source = v.String()
	case FieldRunID:
		e.RunID = v.String()
	case FieldConn:
		e.Conn = v.String()
	case FieldEventType:
		e.EventType = v.String()
	case FieldError:
		e.Error = v.String()
	default:
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		switch x := v.Any().(type) {
		case error:
			e.Extra[a.Key] = x.Error()
		case fmt.Stringer:
			e.Extra[a.Key] = x.String()
		default:
			e.Extra[a.Key] = x
		}
	}
}

// ========================================
// MultiHandler: 同时写多个 Handler
// ========================================

// MultiHandler 扇出日志到多个 slog.Handler。
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler 创建多路 Handler。
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled 只要有一个 Handler 接受该级别就返回 true。
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle 分发到所有接受该级别的 Handler。
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

// WithAttrs 对所有 Handler 调用 WithAttrs。
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: handlers}
}

// WithGroup 对所有 Handler 调用 WithGroup。
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: handlers}
}

// ========================================
// AttachDBHandler: pool 就绪后挂载
// ========================================

var (
	dbHandler atomic.Pointer[DBHandler]
	// preDBLogger 挂载前的日志器, flush 失败时写这里, 避免递归写库
	preDBLogger atomic.Pointer[slog.Logger]
	attachMu    sync.Mutex
)

func fallbackLogger() *slog.Logger {
	if l := preDBLogger.Load(); l != nil {
		return l
	}
	return getLogger()
}

// AttachDBHandler 将 DBHandler 作为第二路 Handler 挂载到默认日志器。
// 调用前的日志只写原输出; 调用后双写。
func AttachDBHandler(db BatchSender, level slog.Level) {
	attachMu.Lock()
	defer attachMu.Unlock()

	if old := dbHandler.Load(); old != nil {
		old.Shutdown()
	}
	orig := preDBLogger.Load()
	if orig == nil {
		orig = getLogger()
		preDBLogger.Store(orig)
	}
	h := NewDBHandler(db, level)
	dbHandler.Store(h)
	storeLogger(slog.New(NewMultiHandler(orig.Handler(), h)))
}

// ShutdownDBHandler flush 剩余日志并恢复挂载前的日志器。
func ShutdownDBHandler() {
	attachMu.Lock()
	defer attachMu.Unlock()

	if h := dbHandler.Swap(nil); h != nil {
		h.Shutdown()
	}
	if orig := preDBLogger.Swap(nil); orig != nil {
		storeLogger(orig)
	}
}
