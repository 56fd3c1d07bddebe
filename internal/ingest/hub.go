// Package ingest 后端 run 事件的 WebSocket 接入。
//
// 后端连接 /ws/ingest 推送 {type, run_id, data} 事件, 事件交给会话管理器;
// 反向通道向拥有该 run 的连接下发 cancel / input_response 指令。
package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/session"
	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
	"github.com/multi-agent/run-transcript/pkg/logger"
	"github.com/multi-agent/run-transcript/pkg/util"
)

const (
	maxConnections       = 64
	defaultMaxMessageKiB = 1024
)

// 下行指令类型。
const (
	CommandCancel        = "cancel"
	CommandInputResponse = "input_response"
	CommandError         = "error"
)

// Command 下发给后端的指令帧。
type Command struct {
	Type     string       `json:"type"`
	RunID    datamodel.ID `json:"run_id,omitempty"`
	Response string       `json:"response,omitempty"`
	Code     string       `json:"code,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// Applier 接收归一化前的后端事件。
type Applier interface {
	Apply(ctx context.Context, ev session.Event) error
}

// Hub 管理后端连接与 run 归属。
type Hub struct {
	sessions   Applier
	upgrader   websocket.Upgrader
	maxMessage int64

	mu     sync.RWMutex // 保护 conns / owners
	conns  map[string]*conn
	owners map[datamodel.ID]string
}

// NewHub 创建接入中心。maxMessageKiB <= 0 时使用默认上限。
func NewHub(sessions Applier, maxMessageKiB int) *Hub {
	if maxMessageKiB <= 0 {
		maxMessageKiB = defaultMaxMessageKiB
	}
	return &Hub{
		sessions:   sessions,
		upgrader:   websocket.Upgrader{CheckOrigin: checkLocalOrigin},
		maxMessage: int64(maxMessageKiB) << 10,
		conns:      make(map[string]*conn),
		owners:     make(map[datamodel.ID]string),
	}
}

// checkLocalOrigin 仅允许非浏览器客户端或 localhost 来源。
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	origin = strings.ToLower(origin)
	for _, allowed := range []string{
		"http://localhost", "https://localhost",
		"http://127.0.0.1", "https://127.0.0.1",
		"http://[::1]", "https://[::1]",
	} {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	logger.Warn("ingest: rejected non-local origin", "origin", origin)
	return false
}

// ServeHTTP 升级为 WebSocket 并进入读循环, 连接断开时返回。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	numConns := len(h.conns)
	h.mu.RUnlock()
	if numConns >= maxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		logger.Warn("ingest: connection rejected (max reached)", logger.FieldCount, numConns)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("ingest: upgrade failed", logger.FieldError, err)
		return
	}
	ws.SetReadLimit(h.maxMessage)

	c := newConn(uuid.NewString(), ws)
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	util.SafeGo(func() {
		if err := c.writeLoop(); err != nil {
			logger.Warn("ingest: write loop failed", logger.FieldConn, c.id, logger.FieldError, err)
			h.disconnect(c.id)
		}
	})
	logger.Info("ingest: backend connected", logger.FieldConn, c.id, logger.FieldRemote, r.RemoteAddr)

	defer func() {
		h.disconnect(c.id)
		logger.Info("ingest: backend disconnected", logger.FieldConn, c.id)
	}()
	h.readLoop(r.Context(), c)
}

func (h *Hub) readLoop(ctx context.Context, c *conn) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("ingest: readLoop panicked, disconnecting", logger.FieldConn, c.id, logger.FieldError, r)
		}
	}()
	log := logger.With(logger.FieldConn, c.id)
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("ingest: read error", logger.FieldError, err)
			}
			return
		}

		var ev session.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			h.reply(c, Command{Type: CommandError, Code: "parse_error", Message: err.Error()})
			continue
		}
		if ev.RunID == "" {
			h.reply(c, Command{Type: CommandError, Code: "invalid_request", Message: "run_id is required"})
			continue
		}
		h.claim(ev.RunID, c.id)

		if err := h.sessions.Apply(logger.WithContext(ctx, log), ev); err != nil {
			log.Warn("ingest: apply event failed",
				logger.FieldEventType, ev.Type, logger.FieldRunID, ev.RunID, logger.FieldError, err)
			h.reply(c, Command{Type: CommandError, RunID: ev.RunID, Code: errorCode(err), Message: err.Error()})
		}
	}
}

func errorCode(err error) string {
	if code := pkgerr.CodeOf(err); code != "" {
		return strings.ToLower(code)
	}
	return "apply_failed"
}

// claim 记录 run 由哪个连接产生, 后发者覆盖。
func (h *Hub) claim(runID datamodel.ID, connID string) {
	h.mu.Lock()
	h.owners[runID] = connID
	h.mu.Unlock()
}

// Owner 返回拥有 run 的连接 id。
func (h *Hub) Owner(runID datamodel.ID) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.owners[runID]
	return id, ok
}

// Connections 当前连接数。
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) reply(c *conn, cmd Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		logger.Warn("ingest: send queue full, disconnecting", logger.FieldConn, c.id)
		h.disconnect(c.id)
	}
}

// Cancel 请求后端停止 run。
func (h *Hub) Cancel(_ context.Context, runID datamodel.ID) error {
	return h.send(Command{Type: CommandCancel, RunID: runID}, "Hub.Cancel")
}

// SendInput 把用户回复转发给等待输入的后端。
func (h *Hub) SendInput(_ context.Context, runID datamodel.ID, response string) error {
	return h.send(Command{Type: CommandInputResponse, RunID: runID, Response: response}, "Hub.SendInput")
}

func (h *Hub) send(cmd Command, op string) error {
	h.mu.RLock()
	connID, ok := h.owners[cmd.RunID]
	c := h.conns[connID]
	h.mu.RUnlock()
	if !ok || c == nil {
		return pkgerr.WithCode(pkgerr.ErrNotFound, op, pkgerr.CodeNoBackend,
			"no backend connected for run "+string(cmd.RunID))
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return pkgerr.Wrap(err, op, "marshal command")
	}
	if !c.enqueue(data) {
		h.disconnect(connID)
		return pkgerr.WithCode(pkgerr.ErrNotFound, op, pkgerr.CodeNoBackend,
			"backend connection "+connID+" overloaded")
	}
	logger.Info("ingest: command sent", logger.FieldConn, connID, logger.FieldRunID, cmd.RunID, logger.FieldMethod, cmd.Type)
	return nil
}

// disconnect 关闭连接并释放其拥有的 run。
func (h *Hub) disconnect(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
	}
	for runID, owner := range h.owners {
		if owner == connID {
			delete(h.owners, runID)
		}
	}
	h.mu.Unlock()
	if ok {
		c.closeNow()
	}
}

// Close 关闭全部连接 (优雅退出)。
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.disconnect(id)
	}
}
