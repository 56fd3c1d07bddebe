package datamodel

// Clone 深拷贝 run, 包括未定形状的 Content。
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	out := *r
	out.Task = r.Task.Clone()
	if r.Messages != nil {
		out.Messages = make([]Message, len(r.Messages))
		for i, m := range r.Messages {
			m.Config = m.Config.Clone()
			out.Messages[i] = m
		}
	}
	if r.TeamResult != nil {
		out.TeamResult = r.TeamResult.Clone()
	}
	return &out
}

// Clone 深拷贝最终结果。
func (tr TeamResult) Clone() *TeamResult {
	out := tr
	if tr.TaskResult.Messages != nil {
		out.TaskResult.Messages = make([]AgentMessageConfig, len(tr.TaskResult.Messages))
		for i, m := range tr.TaskResult.Messages {
			out.TaskResult.Messages[i] = m.Clone()
		}
	}
	return &out
}

// Clone 深拷贝消息配置。
func (c AgentMessageConfig) Clone() AgentMessageConfig {
	out := c
	out.Content = cloneAny(c.Content)
	if c.ModelsUsage != nil {
		u := *c.ModelsUsage
		out.ModelsUsage = &u
	}
	return out
}

// Clone 复制片段。
func (f *StreamingFragment) Clone() *StreamingFragment {
	if f == nil {
		return nil
	}
	out := *f
	return &out
}

// cloneAny 递归复制 JSON 形状的值 (map/slice), 其余类型按值返回。
func cloneAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = cloneAny(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = cloneAny(val)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, val := range x {
			out[i], _ = cloneAny(val).(map[string]any)
		}
		return out
	case []byte:
		return append([]byte(nil), x...)
	default:
		return v
	}
}
