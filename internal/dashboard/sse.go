// sse.go: SSE 事件总线 + handler。
package dashboard

import (
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/multi-agent/run-transcript/internal/datamodel"
	"github.com/multi-agent/run-transcript/pkg/logger"
)

const subscriberBuffer = 32

// EventBus 事件总线 (SSE 推送)。
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
}

// Event SSE 事件。RunID 为空表示全局事件。
type Event struct {
	Type  string
	RunID datamodel.ID
	Data  any
}

// NewEventBus 创建事件总线。
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string]chan Event)}
}

// Publish 广播事件; 订阅者缓冲满时丢弃, 不阻塞发布方。
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe 订阅, 返回订阅 id 与事件 channel。
func (b *EventBus) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe 取消订阅。
//
// 不关闭 ch: handler 通过 ctx.Done() 退出。
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subscribers, id)
	b.mu.Unlock()
}

// Len 当前订阅者数量。
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// streamEvents 持续推送 ch 中被 accept 接受的事件, 空闲时发送心跳。
// emit 返回 false 时结束流。
func (s *Server) streamEvents(c *gin.Context, ch <-chan Event, emit func(Event) bool) {
	heartbeat := s.heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	c.Stream(func(w io.Writer) bool {
		// 复用 timer 避免每次循环创建新定时器
		keepalive := time.NewTimer(heartbeat)
		defer keepalive.Stop()

		for {
			select {
			case evt := <-ch:
				return emit(evt)
			case <-keepalive.C:
				c.SSEvent("ping", "keepalive")
				return true
			case <-c.Request.Context().Done():
				return false
			}
		}
	})
}

// globalEvents 推送全部会话变更通知。
func (s *Server) globalEvents(c *gin.Context) {
	id, ch := s.bus.Subscribe()
	defer func() {
		s.bus.Unsubscribe(id)
		logger.Info("dashboard: SSE client disconnected", logger.FieldClientID, id)
	}()
	logger.Info("dashboard: SSE client connected", logger.FieldClientID, id)

	s.streamEvents(c, ch, func(evt Event) bool {
		c.SSEvent(evt.Type, evt.Data)
		return true
	})
}

// runEvents 推送单个 run 的重新渲染视图: 连接时先发一次, 之后每次变更发一次。
func (s *Server) runEvents(c *gin.Context) {
	runID := datamodel.ID(c.Param("id"))
	opts := s.viewOptions(c)

	view, err := s.buildView(c.Request.Context(), runID, opts)
	if err != nil {
		failWith(c, err)
		return
	}

	id, ch := s.bus.Subscribe()
	defer func() {
		s.bus.Unsubscribe(id)
		logger.Info("dashboard: run SSE client disconnected", logger.FieldClientID, id, logger.FieldRunID, runID)
	}()
	logger.Info("dashboard: run SSE client connected", logger.FieldClientID, id, logger.FieldRunID, runID)

	c.SSEvent("view", view)
	c.Writer.Flush()

	s.streamEvents(c, ch, func(evt Event) bool {
		if evt.RunID != runID {
			return true
		}
		view, err := s.buildView(c.Request.Context(), runID, opts)
		if err != nil {
			c.SSEvent("error", gin.H{"message": err.Error()})
			return false
		}
		c.SSEvent("view", view)
		return true
	})
}
