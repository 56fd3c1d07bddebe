// config_test.go: 配置加载默认值 + TOML 文件 + 环境变量覆盖测试。
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
)

var renderEnvVars = []string{
	"APP_ENV",
	"LOG_LEVEL",
	"RUNVIEW_SHOW_LLM_CALL_EVENTS",
	"RUNVIEW_SHOW_AGENT_FLOW_BY_DEFAULT",
	"RUNVIEW_TEXT_THRESHOLD",
	"RUNVIEW_JSON_THRESHOLD",
	"RUNVIEW_MAX_NESTED_DEPTH",
	"RUNVIEW_LISTEN_ADDR",
	"POSTGRES_CONNECTION_STRING",
	"POSTGRES_POOL_MIN_SIZE",
	"POSTGRES_POOL_MAX_SIZE",
	"RUNVIEW_PERSIST_LOGS",
}

// clearEnv 确保关键环境变量未设置, 测试结束后恢复。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range renderEnvVars {
		if old, ok := os.LookupEnv(name); ok {
			t.Cleanup(func() { os.Setenv(name, old) })
		}
		os.Unsetenv(name)
	}
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runview.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"AppEnv", cfg.AppEnv, "production"},
		{"LogLevel", cfg.LogLevel, "INFO"},
		{"ShowLLMCallEvents", cfg.ShowLLMCallEvents, false},
		{"ShowAgentFlowByDefault", cfg.ShowAgentFlowByDefault, true},
		{"TextThreshold", cfg.TextThreshold, 400},
		{"JSONThreshold", cfg.JSONThreshold, 800},
		{"MaxNestedDepth", cfg.MaxNestedDepth, 4},
		{"ListenAddr", cfg.ListenAddr, ":8080"},
		{"PostgresConnStr", cfg.PostgresConnStr, ""},
		{"PostgresSchema", cfg.PostgresSchema, "public"},
		{"PostgresPoolMaxSize", cfg.PostgresPoolMaxSize, 10},
		{"PersistLogs", cfg.PersistLogs, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("RUNVIEW_SHOW_LLM_CALL_EVENTS", "true")
	t.Setenv("RUNVIEW_TEXT_THRESHOLD", "0")

	cfg := Load()
	if !cfg.ShowLLMCallEvents {
		t.Error("ShowLLMCallEvents should be true from env")
	}
	if cfg.TextThreshold != 1 {
		t.Errorf("TextThreshold = %d, want min clamp 1", cfg.TextThreshold)
	}
}

func TestLoadFile_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeTOML(t, `
text_threshold = 120
json_threshold = 240
show_llm_call_events = true
listen_addr = "127.0.0.1:9000"
`)
	t.Setenv("RUNVIEW_JSON_THRESHOLD", "1000")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.TextThreshold != 120 {
		t.Errorf("TextThreshold = %d, want 120 from file", cfg.TextThreshold)
	}
	if cfg.JSONThreshold != 1000 {
		t.Errorf("JSONThreshold = %d, want 1000 from env", cfg.JSONThreshold)
	}
	if !cfg.ShowLLMCallEvents {
		t.Error("ShowLLMCallEvents should come from file")
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.MaxNestedDepth != 4 {
		t.Errorf("MaxNestedDepth = %d, want default 4", cfg.MaxNestedDepth)
	}
}

func TestLoadFile_EmptyPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.TextThreshold != 400 || cfg.JSONThreshold != 800 {
		t.Fatalf("unexpected thresholds: %d/%d", cfg.TextThreshold, cfg.JSONThreshold)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := LoadFile(writeTOML(t, "text_treshold = 5\n")); err == nil {
		t.Error("unknown key should fail")
	}
	_, err := LoadFile(writeTOML(t, "max_nested_depth = 0\n"))
	if !errors.Is(err, pkgerr.ErrInvalidInput) {
		t.Errorf("zero depth err = %v, want ErrInvalidInput", err)
	}
	_, err = LoadFile(writeTOML(t, "postgres_pool_min_size = 5\npostgres_pool_max_size = 2\n"))
	if !errors.Is(err, pkgerr.ErrInvalidInput) {
		t.Errorf("pool size err = %v, want ErrInvalidInput", err)
	}
}

func TestDevelopment(t *testing.T) {
	for env, want := range map[string]bool{"development": true, "dev": true, "production": false, "": false} {
		if got := (&Config{AppEnv: env}).Development(); got != want {
			t.Errorf("Development(%q) = %v, want %v", env, got, want)
		}
	}
}
