package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/multi-agent/run-transcript/internal/config"
	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/internal/session"
	"github.com/multi-agent/run-transcript/internal/store"
	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
)

type fakeCommander struct {
	mu        sync.Mutex
	cancelled []datamodel.ID
	inputs    map[datamodel.ID]string
	err       error
}

func (f *fakeCommander) Cancel(_ context.Context, id datamodel.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeCommander) SendInput(_ context.Context, id datamodel.ID, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.inputs == nil {
		f.inputs = map[datamodel.ID]string{}
	}
	f.inputs[id] = response
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T, cmd Commander) (*Server, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.LoadFile("")
	require.NoError(t, err)

	runs := store.NewMemoryRunStore()
	mgr := session.NewManager(runs)
	deps := Deps{Config: cfg, Sessions: mgr, Store: runs}
	if cmd != nil {
		deps.Commander = cmd
	}
	s := NewServer(deps)
	t.Cleanup(s.Close)
	return s, mgr
}

func seedRun(t *testing.T, mgr *session.Manager, id string, status datamodel.RunStatus) {
	t.Helper()
	run := &datamodel.Run{
		ID:        datamodel.ID(id),
		Status:    status,
		CreatedAt: datamodel.NewTimestamp(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		Task:      datamodel.AgentMessageConfig{Source: datamodel.SourceUser, Content: "Plan a trip"},
		Messages: []datamodel.Message{
			{Config: datamodel.AgentMessageConfig{Source: "planner", Content: "Day 1: museum",
				ModelsUsage: &datamodel.ModelsUsage{PromptTokens: 10, CompletionTokens: 5}}},
			{Config: datamodel.AgentMessageConfig{Source: datamodel.SourceLLMCallEvent, Content: `{"model":"x"}`}},
			{Config: datamodel.AgentMessageConfig{Source: "executor", Content: []any{
				map[string]any{"id": "c1", "name": "search", "arguments": `{"q":"museum"}`},
			}}},
		},
	}
	require.NoError(t, mgr.Upsert(context.Background(), run))
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, env := doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
}

func TestListAndGetRuns(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	seedRun(t, mgr, "r1", datamodel.StatusActive)
	seedRun(t, mgr, "r2", datamodel.StatusComplete)

	rec, env := doJSON(t, s, http.MethodGet, "/api/runs?status=complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []store.RunSummary
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	require.Equal(t, "r2", items[0].ID)
	require.Equal(t, "Plan a trip", items[0].TaskText)

	rec, env = doJSON(t, s, http.MethodGet, "/api/runs/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run datamodel.Run
	require.NoError(t, json.Unmarshal(env.Data, &run))
	require.Len(t, run.Messages, 3)

	rec, env = doJSON(t, s, http.MethodGet, "/api/runs/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", env.Error.Code)

	rec, env = doJSON(t, s, http.MethodGet, "/api/runs/filters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":["active","complete"]}`, string(env.Data))
}

func TestRunView(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	seedRun(t, mgr, "r1", datamodel.StatusActive)

	type viewBody struct {
		VisibleCount int `json:"visible_count"`
		Usage        int `json:"usage"`
		Status       struct {
			Indicator string `json:"indicator"`
			CanCancel bool   `json:"can_cancel"`
		} `json:"status"`
	}

	rec, env := doJSON(t, s, http.MethodGet, "/api/runs/r1/view", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v viewBody
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.Equal(t, 2, v.VisibleCount)
	require.Equal(t, 15, v.Usage)
	require.Equal(t, "progress", v.Status.Indicator)
	require.True(t, v.Status.CanCancel)

	_, env = doJSON(t, s, http.MethodGet, "/api/runs/r1/view?show_llm_events=true", nil)
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.Equal(t, 3, v.VisibleCount)

	rec, env = doJSON(t, s, http.MethodGet, "/api/runs/r1/tool-calls", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var panel []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &panel))
	require.Len(t, panel, 1)
}

func TestRunView_UnknownStatus(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	mgr.Hydrate([]*datamodel.Run{{ID: "bad", Status: "exploded"}})

	rec, env := doJSON(t, s, http.MethodGet, "/api/runs/bad/view", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.False(t, env.Success)
	require.Equal(t, "unknown_status", env.Error.Code)
}

func TestCancelRun(t *testing.T) {
	t.Run("active_forwards_to_backend", func(t *testing.T) {
		cmd := &fakeCommander{}
		s, mgr := newTestServer(t, cmd)
		seedRun(t, mgr, "r1", datamodel.StatusActive)

		rec, _ := doJSON(t, s, http.MethodPost, "/api/runs/r1/cancel", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []datamodel.ID{"r1"}, cmd.cancelled)
	})

	t.Run("terminal_not_allowed", func(t *testing.T) {
		cmd := &fakeCommander{}
		s, mgr := newTestServer(t, cmd)
		seedRun(t, mgr, "r1", datamodel.StatusComplete)

		rec, env := doJSON(t, s, http.MethodPost, "/api/runs/r1/cancel", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "not_allowed", env.Error.Code)
		require.Empty(t, cmd.cancelled)
	})

	t.Run("no_commander", func(t *testing.T) {
		s, mgr := newTestServer(t, nil)
		seedRun(t, mgr, "r1", datamodel.StatusActive)

		rec, _ := doJSON(t, s, http.MethodPost, "/api/runs/r1/cancel", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("backend_gone", func(t *testing.T) {
		cmd := &fakeCommander{err: pkgerr.WithCode(pkgerr.ErrNotFound, "test", pkgerr.CodeNoBackend, "no backend")}
		s, mgr := newTestServer(t, cmd)
		seedRun(t, mgr, "r1", datamodel.StatusActive)

		rec, env := doJSON(t, s, http.MethodPost, "/api/runs/r1/cancel", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, "backend_unavailable", env.Error.Code)
	})
}

func TestSubmitInput(t *testing.T) {
	cmd := &fakeCommander{}
	s, mgr := newTestServer(t, cmd)
	seedRun(t, mgr, "wait", datamodel.StatusAwaitingInput)
	seedRun(t, mgr, "busy", datamodel.StatusActive)

	rec, _ := doJSON(t, s, http.MethodPost, "/api/runs/wait/input", map[string]string{"response": "yes"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "yes", cmd.inputs["wait"])

	rec, env := doJSON(t, s, http.MethodPost, "/api/runs/wait/input", map[string]string{"response": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", env.Error.Code)

	rec, _ = doJSON(t, s, http.MethodPost, "/api/runs/busy/input", map[string]string{"response": "yes"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestPreferencesDriveVisibility(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	seedRun(t, mgr, "r1", datamodel.StatusActive)

	rec, _ := doJSON(t, s, http.MethodPut, "/api/preferences",
		map[string]any{"key": session.PrefShowLLMCallEvents, "value": true})
	require.Equal(t, http.StatusOK, rec.Code)

	_, env := doJSON(t, s, http.MethodGet, "/api/preferences", nil)
	var prefs map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &prefs))
	require.Equal(t, true, prefs[session.PrefShowLLMCallEvents])

	_, env = doJSON(t, s, http.MethodGet, "/api/runs/r1/view", nil)
	var v struct {
		VisibleCount int `json:"visible_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	require.Equal(t, 3, v.VisibleCount)

	rec, _ = doJSON(t, s, http.MethodPut, "/api/preferences", map[string]any{"value": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRun(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	seedRun(t, mgr, "r1", datamodel.StatusComplete)

	rec, _ := doJSON(t, s, http.MethodDelete, "/api/runs/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, s, http.MethodGet, "/api/runs/r1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, s, http.MethodDelete, "/api/runs/r1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
