// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0" toml:"key"`
//
// 加载顺序: default tag → TOML 配置文件 (可选) → 已设置的环境变量。
package config

import (
	"bytes"
	"os"

	"github.com/pelletier/go-toml/v2"

	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
	"github.com/multi-agent/run-transcript/pkg/util"
)

// Config 应用全局配置，字段名与环境变量一一对应。
type Config struct {
	// 运行环境
	AppEnv   string `env:"APP_ENV" default:"production" toml:"app_env"`
	LogLevel string `env:"LOG_LEVEL" default:"INFO" toml:"log_level"`
	LogDir   string `env:"RUNVIEW_LOG_DIR" toml:"log_dir"`

	// 渲染
	ShowLLMCallEvents      bool `env:"RUNVIEW_SHOW_LLM_CALL_EVENTS" default:"false" toml:"show_llm_call_events"`
	ShowAgentFlowByDefault bool `env:"RUNVIEW_SHOW_AGENT_FLOW_BY_DEFAULT" default:"true" toml:"show_agent_flow_by_default"`
	TextThreshold          int  `env:"RUNVIEW_TEXT_THRESHOLD" default:"400" min:"1" toml:"text_threshold"`
	JSONThreshold          int  `env:"RUNVIEW_JSON_THRESHOLD" default:"800" min:"1" toml:"json_threshold"`
	MaxNestedDepth         int  `env:"RUNVIEW_MAX_NESTED_DEPTH" default:"4" min:"1" toml:"max_nested_depth"`

	// HTTP
	ListenAddr          string `env:"RUNVIEW_LISTEN_ADDR" default:":8080" toml:"listen_addr"`
	SSEHeartbeatSec     int    `env:"RUNVIEW_SSE_HEARTBEAT_SEC" default:"15" min:"1" toml:"sse_heartbeat_sec"`
	ShutdownTimeoutSec  int    `env:"RUNVIEW_SHUTDOWN_TIMEOUT_SEC" default:"10" min:"1" toml:"shutdown_timeout_sec"`
	IngestMaxMessageKiB int    `env:"RUNVIEW_INGEST_MAX_MESSAGE_KIB" default:"1024" min:"1" toml:"ingest_max_message_kib"`

	// PostgreSQL (连接串为空时使用内存存储)
	PostgresConnStr        string `env:"POSTGRES_CONNECTION_STRING" toml:"postgres_connection_string"`
	PostgresSchema         string `env:"POSTGRES_SCHEMA" default:"public" toml:"postgres_schema"`
	PostgresPoolMinSize    int    `env:"POSTGRES_POOL_MIN_SIZE" default:"1" min:"1" toml:"postgres_pool_min_size"`
	PostgresPoolMaxSize    int    `env:"POSTGRES_POOL_MAX_SIZE" default:"10" min:"1" toml:"postgres_pool_max_size"`
	PostgresPoolTimeoutSec int    `env:"POSTGRES_POOL_TIMEOUT_SEC" default:"10" min:"1" toml:"postgres_pool_timeout_sec"`
	PersistLogs            bool   `env:"RUNVIEW_PERSIST_LOGS" default:"true" toml:"persist_logs"`
}

// Load 仅从环境变量加载配置 (通过反射读取 struct tag)。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}

// LoadFile 按 默认值 → TOML 文件 → 环境变量 顺序加载配置。
// path 为空时等同于 Load() 加校验。
func LoadFile(path string) (*Config, error) {
	var cfg Config
	util.LoadDefaults(&cfg)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, pkgerr.Wrapf(err, "Config.LoadFile", "read %s", path)
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, pkgerr.Wrapf(err, "Config.LoadFile", "decode %s", path)
		}
	}

	util.ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验阈值与连接池参数。
func (c *Config) Validate() error {
	switch {
	case c.TextThreshold < 1:
		return pkgerr.Wrapf(pkgerr.ErrInvalidInput, "Config.Validate", "text_threshold must be >= 1, got %d", c.TextThreshold)
	case c.JSONThreshold < 1:
		return pkgerr.Wrapf(pkgerr.ErrInvalidInput, "Config.Validate", "json_threshold must be >= 1, got %d", c.JSONThreshold)
	case c.MaxNestedDepth < 1:
		return pkgerr.Wrapf(pkgerr.ErrInvalidInput, "Config.Validate", "max_nested_depth must be >= 1, got %d", c.MaxNestedDepth)
	case c.PostgresPoolMaxSize < c.PostgresPoolMinSize:
		return pkgerr.Wrapf(pkgerr.ErrInvalidInput, "Config.Validate", "postgres pool max %d < min %d",
			c.PostgresPoolMaxSize, c.PostgresPoolMinSize)
	}
	return nil
}

// Development 报告是否为开发模式 (彩色日志)。
func (c *Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}
