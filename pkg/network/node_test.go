package network

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
)

// fakeNode is a transport node that answers register and records every other frame
type fakeNode struct {
	t        *testing.T
	srv      *httptest.Server
	host     string
	port     int
	register func(req map[string]any) map[string]any

	frames chan map[string]any

	mu        sync.Mutex
	conn      *websocket.Conn
	registers []map[string]any
}

func okRegister(req map[string]any) map[string]any {
	return map[string]any{
		"txn":     req["txn"],
		"payload": map[string]any{"token": "tok-1"},
	}
}

func newFakeNode(t *testing.T, register func(req map[string]any) map[string]any) *fakeNode {
	t.Helper()

	n := &fakeNode{
		t:        t,
		register: register,
		frames:   make(chan map[string]any, 64),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n.mu.Lock()
		n.conn = ws
		n.mu.Unlock()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var req map[string]any
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			if req["action"] == "register" {
				n.mu.Lock()
				n.registers = append(n.registers, req)
				n.mu.Unlock()
				if n.register != nil {
					if reply := n.register(req); reply != nil {
						n.send(reply)
					}
				}
				continue
			}
			n.frames <- req
		}
	}))
	t.Cleanup(n.srv.Close)

	host, portStr, err := net.SplitHostPort(n.srv.Listener.Addr().String())
	require.NoError(t, err)
	n.host = host
	n.port, _ = strconv.Atoi(portStr)
	return n
}

func (n *fakeNode) send(v any) {
	data, err := json.Marshal(v)
	require.NoError(n.t, err)
	n.sendRaw(data)
}

func (n *fakeNode) sendRaw(data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		n.t.Fatal("fake node has no connection")
	}
	_ = n.conn.WriteMessage(websocket.TextMessage, data)
}

// closeConn ends the session with a normal close frame
func (n *fakeNode) closeConn() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = n.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = n.conn.Close()
}

func (n *fakeNode) registerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.registers)
}

func (n *fakeNode) lastRegister() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.registers) == 0 {
		return nil
	}
	return n.registers[len(n.registers)-1]
}

func (n *fakeNode) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case f := <-n.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func (n *fakeNode) expectNoFrame(t *testing.T) {
	t.Helper()
	select {
	case f := <-n.frames:
		t.Fatalf("unexpected frame: %v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestIdentity(t *testing.T) (Identity, *crypto.KeyPair) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return NewIdentity("alice", kp), kp
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	id, _ := newTestIdentity(t)
	c := NewClient(id, opts...)
	t.Cleanup(c.Dispose)
	return c
}
