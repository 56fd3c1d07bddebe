package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleRun = `{
  "id": 12,
  "status": "complete",
  "created_at": "2026-02-01T08:00:00Z",
  "task": {"source": "user", "content": "Compare two laptops"},
  "messages": [
    {"config": {"source": "analyst", "content": "Laptop A is lighter.", "models_usage": {"prompt_tokens": 20, "completion_tokens": 7}}},
    {"config": {"source": "llm_call_event", "content": "{\"model\":\"gpt\"}"}}
  ],
  "team_result": {"task_result": {"messages": [], "stop_reason": "Maximum turns reached"}}
}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRenderCommand_Stdin(t *testing.T) {
	out, err := execute(t, sampleRun, "render", "-")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Run 12", "Compare two laptops", "Laptop A is lighter.", "Maximum turns reached", "Task complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "LLM call") {
		t.Errorf("diagnostic shown without --show-llm-events\n%s", out)
	}
}

func TestRenderCommand_ShowLLMEventsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	if err := os.WriteFile(path, []byte(sampleRun), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "", "render", path, "--show-llm-events", "--json")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var view struct {
		VisibleCount int `json:"visible_count"`
		Usage        int `json:"usage"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if view.VisibleCount != 2 || view.Usage != 27 {
		t.Fatalf("view = %+v, want 2 visible, 27 tokens", view)
	}
}

func TestRenderCommand_UnknownStatus(t *testing.T) {
	_, err := execute(t, `{"id":"x","status":"exploded"}`, "render")
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestRenderCommand_BadJSON(t *testing.T) {
	if _, err := execute(t, `{`, "render"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, `[{"id":"1","name":"search","arguments":{"q":"go"}}]`, "classify")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.Contains(out, `"kind": "tool_call_list"`) {
		t.Fatalf("unexpected classify output\n%s", out)
	}
	if !strings.Contains(out, `"arguments": "{\"q\":\"go\"}"`) {
		t.Fatalf("arguments not normalized\n%s", out)
	}
}
