// handler.go: Dashboard REST API handlers。
package dashboard

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/runview"
	"github.com/multi-agent/run-transcript/internal/store"
	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
)

// registerRoutes 注册 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { success(c, gin.H{"ok": true}) })

	api := s.router.Group("/api")

	api.GET("/runs", s.listRuns)
	api.GET("/runs/filters", s.runFilters)
	api.GET("/runs/:id", s.getRun)
	api.DELETE("/runs/:id", s.deleteRun)
	api.GET("/runs/:id/view", s.runView)
	api.GET("/runs/:id/tool-calls", s.runToolCalls)
	api.POST("/runs/:id/cancel", s.cancelRun)
	api.POST("/runs/:id/input", s.submitInput)
	api.GET("/runs/:id/events", s.runEvents)

	api.GET("/preferences", s.getPreferences)
	api.PUT("/preferences", s.setPreference)

	api.GET("/events", s.globalEvents)

	if s.deps.Ingest != nil {
		s.router.GET("/ws/ingest", gin.WrapH(s.deps.Ingest))
	}
}

// ========================================
// 辅助: 分页参数 / 布尔参数 / run 加载
// ========================================

func queryLimit(c *gin.Context, def int) int {
	v, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if v < 1 {
		return def
	}
	if v > 2000 {
		return 2000
	}
	return v
}

func parseBool(raw string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return b
}

// loadRun 优先读取内存会话 (含流式片段), 否则回落到存储。
func (s *Server) loadRun(ctx context.Context, id datamodel.ID) (*datamodel.Run, *datamodel.StreamingFragment, error) {
	if run, frag, ok := s.deps.Sessions.Snapshot(id); ok {
		return run, frag, nil
	}
	run, err := s.deps.Store.GetRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return run, nil, nil
}

func (s *Server) buildView(ctx context.Context, id datamodel.ID, opts runview.Options) (runview.View, error) {
	run, frag, err := s.loadRun(ctx, id)
	if err != nil {
		return runview.View{}, err
	}
	return runview.Build(run, frag, opts)
}

// ========================================
// Runs
// ========================================

func (s *Server) listRuns(c *gin.Context) {
	items, err := s.deps.Store.ListRuns(c.Request.Context(), store.RunQuery{
		Status:  c.Query("status"),
		Keyword: c.Query("keyword"),
		Limit:   queryLimit(c, 100),
	})
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, items)
}

func (s *Server) runFilters(c *gin.Context) {
	statuses, err := s.deps.Store.Statuses(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, gin.H{"status": statuses})
}

func (s *Server) getRun(c *gin.Context) {
	run, _, err := s.loadRun(c.Request.Context(), datamodel.ID(c.Param("id")))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, run)
}

func (s *Server) deleteRun(c *gin.Context) {
	id := datamodel.ID(c.Param("id"))
	removed := s.deps.Sessions.Remove(id)
	err := s.deps.Store.DeleteRun(c.Request.Context(), id)
	if err != nil && !(removed && errors.Is(err, pkgerr.ErrNotFound)) {
		failWith(c, err)
		return
	}
	success(c, gin.H{"deleted": true})
}

func (s *Server) runView(c *gin.Context) {
	view, err := s.buildView(c.Request.Context(), datamodel.ID(c.Param("id")), s.viewOptions(c))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, view)
}

func (s *Server) runToolCalls(c *gin.Context) {
	view, err := s.buildView(c.Request.Context(), datamodel.ID(c.Param("id")), s.viewOptions(c))
	if err != nil {
		failWith(c, err)
		return
	}
	success(c, view.ToolCalls)
}

func (s *Server) cancelRun(c *gin.Context) {
	view, err := s.buildView(c.Request.Context(), datamodel.ID(c.Param("id")), s.viewOptions(c))
	if err != nil {
		failWith(c, err)
		return
	}
	if err := view.Cancel(); err != nil {
		failWith(c, err)
		return
	}
	success(c, gin.H{"ok": true})
}

func (s *Server) submitInput(c *gin.Context) {
	var req struct {
		Response string `json:"response"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Response) == "" {
		badRequest(c, "invalid_request", "response is required")
		return
	}
	view, err := s.buildView(c.Request.Context(), datamodel.ID(c.Param("id")), s.viewOptions(c))
	if err != nil {
		failWith(c, err)
		return
	}
	if err := view.SubmitInput(req.Response); err != nil {
		failWith(c, err)
		return
	}
	success(c, gin.H{"ok": true})
}

// ========================================
// Preferences
// ========================================

func (s *Server) getPreferences(c *gin.Context) {
	prefs, err := s.deps.Prefs.GetAll(c.Request.Context())
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, prefs)
}

func (s *Server) setPreference(c *gin.Context) {
	var req struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		badRequest(c, "invalid_request", "key is required")
		return
	}
	if err := s.deps.Prefs.Set(c.Request.Context(), req.Key, req.Value); err != nil {
		failWith(c, err)
		return
	}
	s.bus.Publish(Event{Type: "preferences", Data: gin.H{req.Key: req.Value}})
	success(c, gin.H{"ok": true})
}
