package dashboard

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"flowboard/internal/timerange"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 32
)

// client is one websocket connection. All writes go through writeLoop.
type client struct {
	id   string
	conn *websocket.Conn

	mu  sync.RWMutex
	rng timerange.Range

	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, rng timerange.Range) *client {
	return &client{
		id:   id,
		conn: conn,
		rng:  rng,
		out:  make(chan Message, sendBacklog),
		done: make(chan struct{}),
	}
}

func (c *client) currentRange() timerange.Range {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rng
}

func (c *client) setRange(r timerange.Range) {
	c.mu.Lock()
	c.rng = r
	c.mu.Unlock()
}

// send queues msg. A client that cannot keep up is closed.
func (c *client) send(msg Message) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.out <- msg:
	case <-c.done:
	default:
		c.close()
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
