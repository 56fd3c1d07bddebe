package dashboard

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/multi-agent/run-transcript/internal/datamodel"
)

func TestEventBus_PublishNonBlocking(t *testing.T) {
	bus := NewEventBus()
	id, ch := bus.Subscribe()
	require.Equal(t, 1, bus.Len())

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(Event{Type: "update", RunID: "r1"})
	}
	require.Len(t, ch, subscriberBuffer)

	bus.Unsubscribe(id)
	require.Equal(t, 0, bus.Len())
	bus.Publish(Event{Type: "update"})
}

func TestSessionUpdatesReachBus(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	_, ch := s.Bus().Subscribe()

	seedRun(t, mgr, "r1", datamodel.StatusActive)

	select {
	case evt := <-ch:
		require.Equal(t, "update", evt.Type)
		require.Equal(t, datamodel.ID("r1"), evt.RunID)
	case <-time.After(time.Second):
		t.Fatal("no bus event after session update")
	}
}

// readEvent 读取下一个 SSE 事件的名称与数据。
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestRunEvents_StreamsViews(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	seedRun(t, mgr, "r1", datamodel.StatusActive)

	srv := httptest.NewServer(s.Engine())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/runs/r1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	r := bufio.NewReader(resp.Body)
	name, data := readEvent(t, r)
	require.Equal(t, "view", name)
	require.Contains(t, data, `"run_id":"r1"`)

	mgr.AppendChunk("r1", "planner", "thinking hard")

	name, data = readEvent(t, r)
	require.Equal(t, "view", name)
	require.Contains(t, data, "thinking hard")
}

func TestRunEvents_MissingRun(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, env := doJSON(t, s, http.MethodGet, "/api/runs/nope/events", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.False(t, env.Success)
}
