// util_test.go: EscapeLike / ClampInt / 环境变量加载 表驱动测试。
package util

import (
	"testing"
	"time"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"percent", "100%", `100\%`},
		{"underscore", "a_b", `a\_b`},
		{"backslash", `a\b`, `a\\b`},
		{"combined", `%_\`, `\%\_\\`},
		{"no_special", "hello", "hello"},
		{"empty", "", ""},
		{"multiple_percent", "%%", `\%\%`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeLike(tt.in)
			if got != tt.want {
				t.Errorf("EscapeLike(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		name      string
		v, lo, hi int
		want      int
	}{
		{"below_min", -1, 0, 10, 0},
		{"above_max", 20, 0, 10, 10},
		{"in_range", 5, 0, 10, 5},
		{"at_min", 0, 0, 10, 0},
		{"at_max", 10, 0, 10, 10},
		{"negative_range", -5, -10, -1, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampInt(tt.v, tt.lo, tt.hi)
			if got != tt.want {
				t.Errorf("ClampInt(%d, %d, %d) = %d, want %d", tt.v, tt.lo, tt.hi, got, tt.want)
			}
		})
	}
}

type envSample struct {
	Name     string        `env:"UTIL_TEST_NAME" default:"runview"`
	Limit    int           `env:"UTIL_TEST_LIMIT" default:"400" min:"1"`
	Ratio    float64       `env:"UTIL_TEST_RATIO" default:"0.5"`
	Enabled  bool          `env:"UTIL_TEST_ENABLED" default:"true"`
	Timeout  time.Duration `env:"UTIL_TEST_TIMEOUT" default:"5s"`
	Untagged string
}

func TestLoadFromEnv_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("UTIL_TEST_LIMIT", "0")
	t.Setenv("UTIL_TEST_ENABLED", "off")
	t.Setenv("UTIL_TEST_TIMEOUT", "250ms")

	var cfg envSample
	LoadFromEnv(&cfg)

	if cfg.Name != "runview" {
		t.Errorf("Name = %q, want runview", cfg.Name)
	}
	if cfg.Limit != 1 {
		t.Errorf("Limit = %d, want clamp to min 1", cfg.Limit)
	}
	if cfg.Ratio != 0.5 {
		t.Errorf("Ratio = %v, want 0.5", cfg.Ratio)
	}
	if cfg.Enabled {
		t.Error("Enabled should be false when env says off")
	}
	if cfg.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", cfg.Timeout)
	}
}

func TestLoadDefaults_IgnoresEnv(t *testing.T) {
	t.Setenv("UTIL_TEST_NAME", "from-env")

	var cfg envSample
	LoadDefaults(&cfg)
	if cfg.Name != "runview" || cfg.Limit != 400 || !cfg.Enabled || cfg.Timeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestApplyEnvOverrides_OnlySetVars(t *testing.T) {
	t.Setenv("UTIL_TEST_RATIO", "0.75")

	cfg := envSample{Name: "from-file", Limit: 900, Enabled: false, Timeout: time.Minute}
	ApplyEnvOverrides(&cfg)

	if cfg.Name != "from-file" || cfg.Limit != 900 || cfg.Enabled || cfg.Timeout != time.Minute {
		t.Fatalf("unset env vars must keep current values: %+v", cfg)
	}
	if cfg.Ratio != 0.75 {
		t.Fatalf("Ratio = %v, want 0.75", cfg.Ratio)
	}
}

func TestApplyEnvOverrides_InvalidKeepsCurrent(t *testing.T) {
	t.Setenv("UTIL_TEST_LIMIT", "lots")

	cfg := envSample{Limit: 12}
	ApplyEnvOverrides(&cfg)
	if cfg.Limit != 12 {
		t.Fatalf("Limit = %d, want 12", cfg.Limit)
	}
}

func TestLoadFromEnv_NonPointerIsIgnored(t *testing.T) {
	var cfg envSample
	LoadFromEnv(cfg)
	LoadFromEnv(nil)
	if cfg.Name != "" {
		t.Fatal("non-pointer target must not be modified")
	}
}
