package network

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodePoolConnectAnyFailsOver(t *testing.T) {
	dead := newFakeNode(t, okRegister)
	dead.srv.Close()
	live := newFakeNode(t, okRegister)

	deadEndpoint := net.JoinHostPort(dead.host, strconv.Itoa(dead.port))
	liveEndpoint := net.JoinHostPort(live.host, strconv.Itoa(live.port))

	pool, err := NewNodePool(deadEndpoint, "ws://"+liveEndpoint)
	require.NoError(t, err)

	c := newTestClient(t)
	session, err := pool.ConnectAny(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, liveEndpoint, session.Endpoint)

	nodes := pool.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, liveEndpoint, nodes[0].Endpoint)
	assert.True(t, nodes[0].IsActive)
	assert.False(t, nodes[1].IsActive)
	assert.Equal(t, 1, nodes[1].Failures)

	stats := pool.GetStats()
	assert.Equal(t, 2, stats["total_nodes"])
	assert.Equal(t, 1, stats["active_nodes"])
}

func TestNodePoolErrors(t *testing.T) {
	_, err := NewNodePool("nonsense")
	assert.True(t, errors.Is(err, ErrInvalidEndpoint))

	pool, err := NewNodePool()
	require.NoError(t, err)
	c := newTestClient(t)

	_, err = pool.ConnectAny(context.Background(), c)
	assert.True(t, errors.Is(err, ErrNoNodes))

	require.NoError(t, pool.AddNode("127.0.0.1:1"))
	require.NoError(t, pool.AddNode("/ip4/127.0.0.1/tcp/1"))
	assert.Len(t, pool.Nodes(), 1)
	pool.RemoveNode("127.0.0.1:1")
	assert.Empty(t, pool.Nodes())

	require.NoError(t, pool.Close())
	assert.Equal(t, ErrPoolClosed, pool.Close())
	_, err = pool.ConnectAny(context.Background(), c)
	assert.Equal(t, ErrPoolClosed, err)
}

func TestReconnectorRestoresSession(t *testing.T) {
	n := newFakeNode(t, okRegister)
	pool, err := NewNodePool(net.JoinHostPort(n.host, strconv.Itoa(n.port)))
	require.NoError(t, err)

	c := newTestClient(t)
	r := NewReconnector(c, pool, nil)
	r.CheckInterval = 20 * time.Millisecond
	r.MinBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
	n.closeConn()
	require.Eventually(t, func() bool {
		return n.registerCount() == 2 && c.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.Equal(t, context.Canceled, <-done)
}
