package network

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

// Completion receives the outcome of a request: the response payload, or an
// error (*protocol.RemoteError, *RequestTimeoutError, ErrConnectionClosed,
// ErrDisposed).
type Completion func(payload json.RawMessage, err error)

type pendingRequest struct {
	txn         string
	action      protocol.Action
	owner       uint64
	submittedAt time.Time
	complete    Completion
}

// PendingTable maps transaction ids to in-flight requests.
//
// Every path that finishes a request (response, timeout, connection loss)
// goes through take, which removes the entry under the lock. The completion
// runs afterwards, outside the lock, so an entry completes at most once and a
// completion may safely submit new requests.
type PendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

// NewPendingTable creates an empty table
func NewPendingTable() *PendingTable {
	return &PendingTable{
		entries: make(map[string]*pendingRequest),
	}
}

// Add registers a request. owner identifies the connection it was sent on.
func (t *PendingTable) Add(txn string, owner uint64, action protocol.Action, complete Completion) error {
	return t.addAt(txn, owner, action, complete, time.Now())
}

func (t *PendingTable) addAt(txn string, owner uint64, action protocol.Action, complete Completion, at time.Time) error {
	if complete == nil {
		return ErrNilCompletion
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[txn]; exists {
		return ErrDuplicateTxn
	}
	t.entries[txn] = &pendingRequest{
		txn:         txn,
		action:      action,
		owner:       owner,
		submittedAt: at,
		complete:    complete,
	}
	return nil
}

func (t *PendingTable) take(txn string) *pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[txn]
	if !ok {
		return nil
	}
	delete(t.entries, txn)
	return p
}

// Resolve removes txn and completes it. It returns false when txn is not
// pending, in which case nothing is invoked.
func (t *PendingTable) Resolve(txn string, payload json.RawMessage, err error) bool {
	p := t.take(txn)
	if p == nil {
		return false
	}
	p.complete(payload, err)
	return true
}

// Remove drops txn without completing it
func (t *PendingTable) Remove(txn string) bool {
	return t.take(txn) != nil
}

// Expire completes every entry submitted more than timeout before now with a
// RequestTimeoutError and returns their ids
func (t *PendingTable) Expire(now time.Time, timeout time.Duration) []string {
	t.mu.Lock()
	var expired []*pendingRequest
	for txn, p := range t.entries {
		if now.Sub(p.submittedAt) > timeout {
			delete(t.entries, txn)
			expired = append(expired, p)
		}
	}
	t.mu.Unlock()

	txns := make([]string, 0, len(expired))
	for _, p := range expired {
		p.complete(nil, &RequestTimeoutError{
			Txn:     p.txn,
			Action:  p.action,
			Elapsed: now.Sub(p.submittedAt),
		})
		txns = append(txns, p.txn)
	}
	return txns
}

// FailOwner completes every entry sent on the given connection with err
func (t *PendingTable) FailOwner(owner uint64, err error) int {
	return t.failWhere(func(p *pendingRequest) bool { return p.owner == owner }, err)
}

// FailAll completes every entry with err
func (t *PendingTable) FailAll(err error) int {
	return t.failWhere(func(*pendingRequest) bool { return true }, err)
}

func (t *PendingTable) failWhere(match func(*pendingRequest) bool, err error) int {
	t.mu.Lock()
	var failed []*pendingRequest
	for txn, p := range t.entries {
		if match(p) {
			delete(t.entries, txn)
			failed = append(failed, p)
		}
	}
	t.mu.Unlock()

	for _, p := range failed {
		p.complete(nil, err)
	}
	return len(failed)
}

// Has reports whether txn is pending
func (t *PendingTable) Has(txn string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[txn]
	return ok
}

// Len returns the number of pending requests
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
