package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

func TestPendingAddDuplicate(t *testing.T) {
	table := NewPendingTable()
	noop := func(json.RawMessage, error) {}

	require.NoError(t, table.Add("aa", 1, protocol.ActionDHTGet, noop))
	assert.Equal(t, ErrDuplicateTxn, table.Add("aa", 1, protocol.ActionDHTGet, noop))
	assert.Equal(t, ErrNilCompletion, table.Add("bb", 1, protocol.ActionDHTGet, nil))
	assert.Equal(t, 1, table.Len())
}

func TestPendingResolveOnce(t *testing.T) {
	table := NewPendingTable()

	calls := 0
	require.NoError(t, table.Add("aa", 1, protocol.ActionDHTGet, func(p json.RawMessage, err error) {
		calls++
		assert.JSONEq(t, `{"v":1}`, string(p))
		assert.NoError(t, err)
	}))

	assert.True(t, table.Resolve("aa", json.RawMessage(`{"v":1}`), nil))
	assert.False(t, table.Resolve("aa", json.RawMessage(`{"v":2}`), nil))
	assert.False(t, table.Has("aa"))
	assert.Equal(t, 1, calls)
}

func TestPendingCompletionMaySubmit(t *testing.T) {
	table := NewPendingTable()

	require.NoError(t, table.Add("aa", 1, protocol.ActionDHTGet, func(json.RawMessage, error) {
		require.NoError(t, table.Add("bb", 1, protocol.ActionDHTGet, func(json.RawMessage, error) {}))
	}))
	assert.True(t, table.Resolve("aa", nil, nil))
	assert.True(t, table.Has("bb"))
}

func TestPendingExpireBoundary(t *testing.T) {
	table := NewPendingTable()
	now := time.Now()
	timeout := 35 * time.Second

	var got []error
	record := func(_ json.RawMessage, err error) { got = append(got, err) }
	require.NoError(t, table.addAt("edge", 1, protocol.ActionDHTGet, record, now.Add(-timeout)))
	require.NoError(t, table.addAt("old", 1, protocol.ActionPeerMsg, record, now.Add(-timeout-time.Millisecond)))
	require.NoError(t, table.addAt("new", 1, protocol.ActionPing, record, now))

	expired := table.Expire(now, timeout)
	assert.Equal(t, []string{"old"}, expired)
	assert.True(t, table.Has("edge"))
	assert.True(t, table.Has("new"))

	require.Len(t, got, 1)
	var terr *RequestTimeoutError
	require.True(t, errors.As(got[0], &terr))
	assert.Equal(t, "old", terr.Txn)
	assert.Equal(t, protocol.ActionPeerMsg, terr.Action)
	assert.Contains(t, terr.Error(), "WS request txn old")
}

func TestPendingFailOwner(t *testing.T) {
	table := NewPendingTable()
	var failed []string

	for i, owner := range []uint64{1, 1, 2} {
		txn := fmt.Sprintf("t%d", i)
		require.NoError(t, table.Add(txn, owner, protocol.ActionDHTGet, func(_ json.RawMessage, err error) {
			assert.Equal(t, ErrConnectionClosed, err)
			failed = append(failed, txn)
		}))
	}

	assert.Equal(t, 2, table.FailOwner(1, ErrConnectionClosed))
	assert.ElementsMatch(t, []string{"t0", "t1"}, failed)
	assert.True(t, table.Has("t2"))

	assert.Equal(t, 1, table.FailAll(ErrConnectionClosed))
	assert.Equal(t, 0, table.Len())
}

func TestPendingRemoveDoesNotComplete(t *testing.T) {
	table := NewPendingTable()
	require.NoError(t, table.Add("aa", 1, protocol.ActionDHTGet, func(json.RawMessage, error) {
		t.Fatal("completion invoked")
	}))
	assert.True(t, table.Remove("aa"))
	assert.False(t, table.Remove("aa"))
}

// Responses, sweeps and connection loss race for the same entries; each
// completion must run exactly once.
func TestPendingExactlyOnce(t *testing.T) {
	table := NewPendingTable()
	const n = 500

	var counts [n]atomic.Int32
	past := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		i := i
		require.NoError(t, table.addAt(fmt.Sprintf("%04d", i), 1, protocol.ActionDHTGet, func(json.RawMessage, error) {
			counts[i].Add(1)
		}, past))
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			table.Resolve(fmt.Sprintf("%04d", i), nil, nil)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			table.Expire(time.Now(), time.Second)
		}
	}()
	go func() {
		defer wg.Done()
		table.FailOwner(1, ErrConnectionClosed)
	}()
	wg.Wait()

	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "entry %d", i)
	}
	assert.Equal(t, 0, table.Len())
}
