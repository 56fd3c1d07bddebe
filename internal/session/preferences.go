// preferences.go: 查看者偏好 (诊断事件可见性等)。
package session

import (
	"context"
	"sync"
)

// 偏好键。
const (
	PrefShowLLMCallEvents      = "show_llm_call_events"
	PrefShowAgentFlowByDefault = "show_agent_flow_by_default"
)

// PreferenceStore 偏好持久化接口。
type PreferenceStore interface {
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any) error
	GetAll(ctx context.Context) (map[string]any, error)
}

// PreferenceManager 偏好读写。store 为 nil 时降级为内存存储。
// 未设置的键返回配置注入的默认值。
type PreferenceManager struct {
	store    PreferenceStore
	fallback sync.Map // nil-store 时的内存降级
	defaults map[string]any
}

// NewPreferenceManager 创建偏好管理器。
func NewPreferenceManager(s PreferenceStore, defaults map[string]any) *PreferenceManager {
	d := make(map[string]any, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &PreferenceManager{store: s, defaults: d}
}

// Get 读取单个偏好, 未设置时返回默认值。
func (m *PreferenceManager) Get(ctx context.Context, key string) (any, error) {
	var (
		v   any
		err error
	)
	if m.store == nil {
		v, _ = m.fallback.Load(key)
	} else if v, err = m.store.Get(ctx, key); err != nil {
		return nil, err
	}
	if v == nil {
		return m.defaults[key], nil
	}
	return v, nil
}

// Set 更新偏好。
func (m *PreferenceManager) Set(ctx context.Context, key string, value any) error {
	if m.store == nil {
		m.fallback.Store(key, value)
		return nil
	}
	return m.store.Set(ctx, key, value)
}

// GetAll 返回默认值与已保存偏好的合并结果。
func (m *PreferenceManager) GetAll(ctx context.Context) (map[string]any, error) {
	result := make(map[string]any, len(m.defaults))
	for k, v := range m.defaults {
		result[k] = v
	}
	if m.store == nil {
		m.fallback.Range(func(k, v any) bool {
			result[k.(string)] = v
			return true
		})
		return result, nil
	}
	saved, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range saved {
		result[k] = v
	}
	return result, nil
}

// Bool 读取布尔偏好; 类型不符或出错时返回 def。
func (m *PreferenceManager) Bool(ctx context.Context, key string, def bool) bool {
	v, err := m.Get(ctx, key)
	if err != nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}
