package network

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// connection is one websocket session to a transport node. Reads happen on a
// single goroutine; writes are serialized by writeMu.
type connection struct {
	id       uint64
	ws       *websocket.Conn
	host     string
	port     int
	endpoint string

	open   atomic.Bool
	closed sync.Once
	done   chan struct{}

	writeMu sync.Mutex
}

func newConnection(id uint64, ws *websocket.Conn, host string, port int) *connection {
	c := &connection{
		id:       id,
		ws:       ws,
		host:     host,
		port:     port,
		endpoint: endpointString(host, port),
		done:     make(chan struct{}),
	}
	c.open.Store(true)
	return c
}

// isOpen reports whether the socket can still be written to
func (c *connection) isOpen() bool {
	return c.open.Load()
}

func (c *connection) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.isOpen() {
		return ErrNoConnection
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.open.Store(false)
		return err
	}
	return nil
}

func (c *connection) read() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// close sends a close frame and tears the socket down. Safe to call more than once.
func (c *connection) close() {
	c.closed.Do(func() {
		c.open.Store(false)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		_ = c.ws.Close()
		close(c.done)
	})
}
