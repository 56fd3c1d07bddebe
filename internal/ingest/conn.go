// conn.go: 单个后端 WebSocket 连接: 有界发送队列 + 串行写循环。
package ingest

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	connOutboxSize = 64               // 单连接发送缓冲
	writeTimeout   = 10 * time.Second // 单帧写超时
)

// conn WebSocket 连接 + 写锁 (gorilla/websocket 不支持并发写)。
type conn struct {
	id        string
	ws        *websocket.Conn
	wrMu      sync.Mutex
	outbox    chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn) *conn {
	return &conn{
		id:      id,
		ws:      ws,
		outbox:  make(chan []byte, connOutboxSize),
		closeCh: make(chan struct{}),
	}
}

func (c *conn) writeMsg(data []byte) error {
	c.wrMu.Lock()
	defer c.wrMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// enqueue 非阻塞入队; 连接已关闭或队列满时返回 false。
func (c *conn) enqueue(data []byte) bool {
	select {
	case <-c.closeCh:
		return false
	default:
	}
	select {
	case c.outbox <- data:
		return true
	default:
		return false
	}
}

func (c *conn) closeNow() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

func (c *conn) writeLoop() error {
	for {
		select {
		case <-c.closeCh:
			return nil
		case data := <-c.outbox:
			if err := c.writeMsg(data); err != nil {
				return err
			}
		}
	}
}
