package network

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrPoolClosed = errors.New("node pool closed")
	ErrNoNodes    = errors.New("no transport nodes available")
)

// NodeInfo describes a transport node known to the pool
type NodeInfo struct {
	Endpoint  string    `json:"endpoint"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	IsActive  bool      `json:"online"`
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
}

// NodePool is an ordered list of transport nodes a client may register with.
// Nodes that failed recently are tried after the healthy ones.
type NodePool struct {
	mu     sync.RWMutex
	nodes  []*NodeInfo
	closed bool
}

// NewNodePool creates a pool from endpoint strings (see ParseEndpoint)
func NewNodePool(endpoints ...string) (*NodePool, error) {
	p := &NodePool{}
	for _, e := range endpoints {
		if err := p.AddNode(e); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddNode adds a node. Adding a known endpoint is a no-op.
func (p *NodePool) AddNode(endpoint string) error {
	host, port, err := ParseEndpoint(endpoint)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := endpointString(host, port)
	for _, n := range p.nodes {
		if n.Endpoint == key {
			return nil
		}
	}
	p.nodes = append(p.nodes, &NodeInfo{Endpoint: key, Host: host, Port: port, IsActive: true})
	return nil
}

// RemoveNode removes a node from the pool
func (p *NodePool) RemoveNode(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, n := range p.nodes {
		if n.Endpoint == endpoint {
			p.nodes = append(p.nodes[:i], p.nodes[i+1:]...)
			return
		}
	}
}

// Nodes returns a copy of the pool, healthy nodes first
func (p *NodePool) Nodes() []NodeInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]NodeInfo, 0, len(p.nodes))
	for _, n := range p.ordered() {
		out = append(out, *n)
	}
	return out
}

// ordered must be called with the lock held
func (p *NodePool) ordered() []*NodeInfo {
	out := make([]*NodeInfo, 0, len(p.nodes))
	for _, n := range p.nodes {
		if n.IsActive {
			out = append(out, n)
		}
	}
	for _, n := range p.nodes {
		if !n.IsActive {
			out = append(out, n)
		}
	}
	return out
}

// UpdateNodeStatus records the outcome of a connection attempt
func (p *NodePool) UpdateNodeStatus(endpoint string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, n := range p.nodes {
		if n.Endpoint != endpoint {
			continue
		}
		if err != nil {
			n.IsActive = false
			n.Failures++
			n.LastError = err.Error()
		} else {
			n.IsActive = true
			n.Failures = 0
			n.LastError = ""
			n.LastSeen = time.Now()
		}
		return
	}
}

// ConnectAny registers client with the first node that accepts it
func (p *NodePool) ConnectAny(ctx context.Context, client *Client) (*SessionInfo, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	candidates := make([]NodeInfo, 0, len(p.nodes))
	for _, n := range p.ordered() {
		candidates = append(candidates, *n)
	}
	p.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrNoNodes
	}

	var errs []error
	for _, n := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		session, err := client.Connect(ctx, n.Host, n.Port)
		p.UpdateNodeStatus(n.Endpoint, err)
		if err == nil {
			return session, nil
		}
		if errors.Is(err, ErrDisposed) {
			return nil, err
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrNoNodes}, errs...)...)
}

// GetStats returns pool statistics
func (p *NodePool) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	active := 0
	for _, n := range p.nodes {
		if n.IsActive {
			active++
		}
	}
	return map[string]interface{}{
		"total_nodes":  len(p.nodes),
		"active_nodes": active,
	}
}

// Close marks the pool closed. Clients connected through it are not touched.
func (p *NodePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.closed = true
	return nil
}
