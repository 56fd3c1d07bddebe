// Package dashboard 提供 run 转录的 HTTP 服务: REST 查询、渲染视图与 SSE 推送。
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/multi-agent/run-transcript/internal/config"
	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/runview"
	"github.com/multi-agent/run-transcript/internal/session"
	"github.com/multi-agent/run-transcript/internal/store"
	"github.com/multi-agent/run-transcript/pkg/logger"
)

// Commander 把取消与用户回复转发给产生 run 的后端。
type Commander interface {
	Cancel(ctx context.Context, runID datamodel.ID) error
	SendInput(ctx context.Context, runID datamodel.ID, response string) error
}

// Deps 服务依赖 (一次注入)。Commander 与 Ingest 可为 nil。
type Deps struct {
	Config    *config.Config
	Sessions  *session.Manager
	Store     store.RunStore
	Prefs     *session.PreferenceManager
	Commander Commander
	Ingest    http.Handler
}

// Server Dashboard HTTP 服务。
type Server struct {
	router *gin.Engine
	deps   Deps
	bus    *EventBus

	heartbeat   time.Duration
	unsubscribe func()
}

// NewServer 创建 Dashboard 服务, 并把会话变更接入事件总线。
func NewServer(deps Deps) *Server {
	if deps.Config == nil {
		deps.Config = config.Load()
	}
	if deps.Store == nil {
		deps.Store = store.NewMemoryRunStore()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager(deps.Store)
	}
	if deps.Prefs == nil {
		deps.Prefs = session.NewPreferenceManager(nil, nil)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	s := &Server{
		router:    r,
		deps:      deps,
		bus:       NewEventBus(),
		heartbeat: time.Duration(deps.Config.SSEHeartbeatSec) * time.Second,
	}
	s.unsubscribe = deps.Sessions.Subscribe(func(u session.Update) {
		s.bus.Publish(Event{Type: "update", RunID: u.RunID, Data: u})
	})
	s.registerRoutes()
	return s
}

// Engine 返回 Gin 引擎。
func (s *Server) Engine() *gin.Engine { return s.router }

// Bus 返回事件总线。
func (s *Server) Bus() *EventBus { return s.bus }

// Close 解除会话订阅。
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// viewOptions 组合可见性 (查询参数 > 偏好 > 配置)、渲染阈值与后端回调。
func (s *Server) viewOptions(c *gin.Context) runview.Options {
	ctx := c.Request.Context()
	cfg := s.deps.Config

	showDiag := s.deps.Prefs.Bool(ctx, session.PrefShowLLMCallEvents, cfg.ShowLLMCallEvents)
	if raw, ok := c.GetQuery("show_llm_events"); ok {
		showDiag = parseBool(raw, showDiag)
	}

	opts := runview.OptionsFor(showDiag, cfg.TextThreshold, cfg.JSONThreshold, cfg.MaxNestedDepth)
	if cmd := s.deps.Commander; cmd != nil {
		opts.Hooks = runview.Hooks{
			Cancel: func(id datamodel.ID) error { return cmd.Cancel(ctx, id) },
			SubmitInput: func(id datamodel.ID, response string) error {
				return cmd.SendInput(ctx, id, response)
			},
		}
	}
	return opts
}

// requestLogger 记录每个请求的方法、路径、状态码与耗时。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" {
			return
		}
		logger.Debug("dashboard: request",
			logger.FieldMethod, c.Request.Method,
			logger.FieldPath, c.Request.URL.Path,
			logger.FieldStatus, c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
