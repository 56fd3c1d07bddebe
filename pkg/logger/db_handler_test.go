package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

// captureHandler 记录收到的 Record, 供 MultiHandler 测试使用。
type captureHandler struct {
	mu      sync.Mutex
	level   slog.Level
	records []slog.Record
}

func (c *captureHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= c.level }

func (c *captureHandler) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return c }
func (c *captureHandler) WithGroup(_ string) slog.Handler      { return c }

func (c *captureHandler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// fakeResults 只实现 Close, 其余方法不会被调用。
type fakeResults struct {
	pgx.BatchResults
	err error
}

func (r fakeResults) Close() error { return r.err }

// recordingSender 记录每个 batch 中排队的 SQL 和参数。
type recordingSender struct {
	mu      sync.Mutex
	err     error
	queries []*pgx.QueuedQuery
}

func (s *recordingSender) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, b.QueuedQueries...)
	return fakeResults{err: s.err}
}

func (s *recordingSender) snapshot() []*pgx.QueuedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*pgx.QueuedQuery(nil), s.queries...)
}

func newRecord(level slog.Level, msg string, args ...any) slog.Record {
	r := slog.NewRecord(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), level, msg, 0)
	r.Add(args...)
	return r
}

func TestMultiHandler_FanOut(t *testing.T) {
	info := &captureHandler{level: slog.LevelInfo}
	warn := &captureHandler{level: slog.LevelWarn}
	m := NewMultiHandler(info, warn)

	if !m.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be enabled by the first handler")
	}
	if m.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled for all handlers")
	}

	_ = m.Handle(context.Background(), newRecord(slog.LevelInfo, "run started"))
	_ = m.Handle(context.Background(), newRecord(slog.LevelError, "store failed"))

	if got := info.count(); got != 2 {
		t.Fatalf("info handler records = %d, want 2", got)
	}
	if got := warn.count(); got != 1 {
		t.Fatalf("warn handler records = %d, want 1", got)
	}
}

func TestApplyAttr_KnownFields(t *testing.T) {
	var e LogEntry
	for _, a := range []slog.Attr{
		slog.String(FieldSource, "ingest"),
		slog.String(FieldRunID, "run-1"),
		slog.Int(FieldConn, 3),
		slog.String(FieldEventType, "run.updated"),
		slog.Any(FieldError, errors.New("boom")),
	} {
		applyAttr(&e, a)
	}

	if e.Source != "ingest" || e.RunID != "run-1" || e.Conn != "3" || e.EventType != "run.updated" {
		t.Fatalf("unexpected columns: %+v", e)
	}
	if e.Error != "boom" {
		t.Fatalf("Error = %q, want boom", e.Error)
	}
	if e.Extra != nil {
		t.Fatalf("Extra = %v, want nil", e.Extra)
	}
}

func TestApplyAttr_UnknownGoesToExtra(t *testing.T) {
	var e LogEntry
	applyAttr(&e, slog.Int(FieldCount, 4))
	applyAttr(&e, slog.Any("cause", errors.New("conn reset")))
	applyAttr(&e, slog.Duration("elapsed", 2*time.Second))

	if got := e.Extra[FieldCount]; got != int64(4) {
		t.Fatalf("Extra[count] = %#v, want int64(4)", got)
	}
	if got := e.Extra["cause"]; got != "conn reset" {
		t.Fatalf("Extra[cause] = %#v, want error text", got)
	}
	if got := e.Extra["elapsed"]; got != "2s" {
		t.Fatalf("Extra[elapsed] = %#v, want 2s", got)
	}
}

func TestDBHandler_Handle_PopulatesEntry(t *testing.T) {
	h := &DBHandler{
		buf:    make(chan LogEntry, 1),
		level:  slog.LevelInfo,
		closed: &atomic.Bool{},
	}
	withRun := h.WithAttrs([]slog.Attr{slog.String(FieldRunID, "run-9")})

	r := newRecord(slog.LevelWarn, "stale snapshot", FieldSource, "session", FieldVersion, 2)
	if err := withRun.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	select {
	case e := <-h.buf:
		if e.Level != "WARN" || e.Message != "stale snapshot" {
			t.Fatalf("unexpected entry: %+v", e)
		}
		if e.RunID != "run-9" || e.Source != "session" {
			t.Fatalf("columns not applied: %+v", e)
		}
		if e.Extra[FieldVersion] != int64(2) {
			t.Fatalf("Extra = %v", e.Extra)
		}
	default:
		t.Fatal("entry not buffered")
	}
}

func TestDBHandler_NotEnabled_BelowLevel(t *testing.T) {
	h := &DBHandler{level: slog.LevelWarn, closed: &atomic.Bool{}}
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be below warn")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error should pass warn")
	}
}

func TestDBHandler_ShutdownFlushesBatch(t *testing.T) {
	sender := &recordingSender{}
	h := NewDBHandler(sender, slog.LevelInfo)

	_ = h.Handle(context.Background(), newRecord(slog.LevelInfo, "run created", FieldRunID, "a"))
	_ = h.Handle(context.Background(), newRecord(slog.LevelError, "save failed", FieldRunID, "b", "attempt", 2))
	h.Shutdown()
	h.Shutdown()

	// shutdown 之后的写入直接丢弃
	_ = h.Handle(context.Background(), newRecord(slog.LevelInfo, "late"))

	queries := sender.snapshot()
	if len(queries) != 2 {
		t.Fatalf("queued %d queries, want 2", len(queries))
	}
	for _, q := range queries {
		if q.SQL != insertLogSQL {
			t.Fatalf("unexpected SQL: %s", q.SQL)
		}
		if len(q.Arguments) != 9 {
			t.Fatalf("arguments = %d, want 9", len(q.Arguments))
		}
	}
	if got := queries[0].Arguments[4]; got != "a" {
		t.Fatalf("run_id arg = %#v, want a", got)
	}
	if extra, _ := queries[0].Arguments[8].([]byte); extra != nil {
		t.Fatalf("extra without attrs = %s, want nil", extra)
	}
	extra, _ := queries[1].Arguments[8].([]byte)
	if string(extra) != `{"attempt":2}` {
		t.Fatalf("extra = %s", extra)
	}
}

func TestAttachDBHandler_DualWriteAndRestore(t *testing.T) {
	var out bytes.Buffer
	InitTo(&out, "production", "INFO")
	t.Cleanup(func() { Init("production", "INFO") })
	orig := Get()

	sender := &recordingSender{err: errors.New("relation missing")}
	AttachDBHandler(sender, slog.LevelInfo)
	if _, ok := Get().Handler().(*MultiHandler); !ok {
		t.Fatalf("handler = %T, want *MultiHandler", Get().Handler())
	}

	Info("hydrated runs", FieldCount, 3)
	ShutdownDBHandler()

	if Get() != orig {
		t.Fatal("original logger not restored")
	}
	if n := len(sender.snapshot()); n != 1 {
		t.Fatalf("queued %d queries, want 1", n)
	}
	text := out.String()
	if !strings.Contains(text, "hydrated runs") {
		t.Fatalf("stdout missing message: %s", text)
	}
	if !strings.Contains(text, "db_handler: flush failed") {
		t.Fatalf("flush failure not reported to original logger: %s", text)
	}
}
