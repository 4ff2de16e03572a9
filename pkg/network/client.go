package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
	"github.com/ZentaChain/zentalk-wsnet/pkg/tasks"
)

const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultRequestTimeout  = 35 * time.Second
	DefaultMonitorInterval = 5 * time.Second

	// DefaultTransport is the transport name announced at registration
	DefaultTransport = "ws"
)

// ConnState is the state of the client's current connection
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
	StateErrored
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Identity is the account the client registers with
type Identity struct {
	Account      string
	PublicKey    string // base58, sent at registration
	PublicKeyHex string // sent with dhtput
	PKHash       string
	Transport    string
}

// NewIdentity derives the registration identity from a key pair
func NewIdentity(account string, kp *crypto.KeyPair) Identity {
	return Identity{
		Account:      account,
		PublicKey:    kp.PublicKeyBase58(),
		PublicKeyHex: kp.PublicKeyHex(),
		PKHash:       kp.PublicKeyHash(),
		Transport:    DefaultTransport,
	}
}

// Config holds the client timings
type Config struct {
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	MonitorInterval time.Duration
	// Path is the URL path requested on the node, "/" when empty
	Path string
}

// DefaultConfig returns the default client timings
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:  DefaultConnectTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		MonitorInterval: DefaultMonitorInterval,
		Path:            "/",
	}
}

// SessionInfo describes a registered session
type SessionInfo struct {
	Token    string
	Endpoint string
}

// Option configures a Client
type Option func(*Client)

// WithConfig overrides the default timings. Zero fields keep their default.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		if cfg.ConnectTimeout > 0 {
			c.config.ConnectTimeout = cfg.ConnectTimeout
		}
		if cfg.RequestTimeout > 0 {
			c.config.RequestTimeout = cfg.RequestTimeout
		}
		if cfg.MonitorInterval > 0 {
			c.config.MonitorInterval = cfg.MonitorInterval
		}
		if cfg.Path != "" {
			c.config.Path = cfg.Path
		}
	}
}

// WithLogger sets the client logger
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithScheduler runs the liveness monitor on a shared scheduler
func WithScheduler(s *tasks.Scheduler) Option {
	return func(c *Client) {
		c.scheduler = s
	}
}

// WithMetrics records client activity
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDialer replaces the websocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// Client is a websocket connection to a transport node.
//
// Requests are correlated with responses by transaction id. Callbacks are
// invoked from the read goroutine or the liveness monitor and must not block
// for long. A completion may call Connect or Dispose.
type Client struct {
	identity  Identity
	config    Config
	log       *zap.SugaredLogger
	scheduler *tasks.Scheduler
	ownSched  bool
	metrics   *Metrics
	dialer    *websocket.Dialer
	pending   *PendingTable

	mu          sync.RWMutex
	conn        *connection
	state       ConnState
	token       string
	attempts    int
	lastErr     error
	monitorTask string
	disposed    bool

	connSeq      atomic.Uint64
	lastActivity atomic.Int64

	// Callbacks
	OnPeerEvent       func(*protocol.PeerEvent)
	OnContactWarning  func(contact *protocol.Contact, reason string)
	OnContactError    func(contact *protocol.Contact, reason string)
	OnConnectionError func(endpoint string, err error)
}

// NewClient creates a client for identity. It does not connect.
func NewClient(identity Identity, opts ...Option) *Client {
	if identity.Transport == "" {
		identity.Transport = DefaultTransport
	}
	c := &Client{
		identity: identity,
		config:   DefaultConfig(),
		log:      zap.NewNop().Sugar(),
		dialer:   websocket.DefaultDialer,
		pending:  NewPendingTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = tasks.NewScheduler(c.log)
		c.ownSched = true
	}
	return c
}

// Identity returns the registration identity
func (c *Client) Identity() Identity {
	return c.identity
}

// Connect dials host:port and registers the account. It blocks until the node
// acknowledges with a session token, the connect timeout elapses or ctx is done.
func (c *Client) Connect(ctx context.Context, host string, port int) (*SessionInfo, error) {
	endpoint := endpointString(host, port)
	if err := validateEndpoint(host, port); err != nil {
		return nil, &ConnectError{Kind: ConnectInvalid, Endpoint: endpoint, Err: err}
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrDisposed
	}
	c.attempts++
	old := c.conn
	oldTask := c.monitorTask
	c.conn = nil
	c.token = ""
	c.monitorTask = ""
	c.state = StateConnecting
	c.mu.Unlock()

	if oldTask != "" {
		c.scheduler.CancelTask(oldTask)
	}
	if old != nil {
		old.close()
	}
	c.metrics.connectAttempt()

	c.log.Infof("Connecting to WS transport %s", endpoint)

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: endpoint, Path: c.config.Path}
	ws, _, err := c.dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		kind := ConnectTransport
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			kind = ConnectTimeout
			err = ErrConnectTimeout
		}
		return nil, c.connectFailed(&ConnectError{Kind: kind, Endpoint: endpoint, Err: err})
	}

	conn := newConnection(c.connSeq.Add(1), ws, host, port)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.touch()

	go c.readLoop(conn)

	type registerResult struct {
		payload json.RawMessage
		err     error
	}
	result := make(chan registerResult, 1)

	txn, err := c.submit(conn, func(txn string) protocol.Request {
		return &protocol.RegisterRequest{
			RequestHeader: protocol.RequestHeader{Action: protocol.ActionRegister, Txn: txn},
			Account:       c.identity.Account,
			PublicKey:     c.identity.PublicKey,
			PKHash:        c.identity.PKHash,
			Transport:     c.identity.Transport,
		}
	}, func(payload json.RawMessage, err error) {
		result <- registerResult{payload: payload, err: err}
	})
	if err != nil {
		conn.close()
		return nil, c.connectFailed(&ConnectError{Kind: ConnectTransport, Endpoint: endpoint, Err: err})
	}

	var res registerResult
	select {
	case res = <-result:
	case <-dialCtx.Done():
		if c.pending.Remove(txn) {
			conn.close()
			if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
				return nil, c.connectFailed(&ConnectError{Kind: ConnectTimeout, Endpoint: endpoint, Err: ErrConnectTimeout})
			}
			return nil, c.connectFailed(&ConnectError{Kind: ConnectTransport, Endpoint: endpoint, Err: dialCtx.Err()})
		}
		// the response raced the deadline
		res = <-result
	}

	if res.err != nil {
		conn.close()
		var remote *protocol.RemoteError
		kind := ConnectTransport
		if errors.As(res.err, &remote) {
			kind = ConnectRefused
		}
		return nil, c.connectFailed(&ConnectError{Kind: kind, Endpoint: endpoint, Err: res.err})
	}

	var ack protocol.RegisterPayload
	if len(res.payload) == 0 || json.Unmarshal(res.payload, &ack) != nil || ack.Token == "" {
		conn.close()
		return nil, c.connectFailed(&ConnectError{
			Kind:     ConnectRefused,
			Endpoint: endpoint,
			Err:      fmt.Errorf("%w: no session token in register response", ErrRegistrationRefused),
		})
	}

	taskName := monitorTaskName(host, port)
	c.mu.Lock()
	if c.conn != conn || !conn.isOpen() {
		c.mu.Unlock()
		return nil, c.connectFailed(&ConnectError{Kind: ConnectTransport, Endpoint: endpoint, Err: ErrConnectionClosed})
	}
	c.token = ack.Token
	c.state = StateConnected
	c.lastErr = nil
	c.monitorTask = taskName
	c.mu.Unlock()

	c.scheduler.AddTask(taskName, c.config.MonitorInterval, c.checkConnection)

	c.log.Infof("✅ WS transport %s registered", endpoint)
	return &SessionInfo{Token: ack.Token, Endpoint: endpoint}, nil
}

func (c *Client) connectFailed(err *ConnectError) error {
	c.mu.Lock()
	c.state = StateErrored
	c.lastErr = err
	c.mu.Unlock()

	c.log.Warnf("WS transport %s connect failed: %v", err.Endpoint, err.Err)
	return err
}

// IsConnected reports whether a registered session is open
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected && c.conn != nil && c.conn.isOpen()
}

// State returns the connection state
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Pending returns the number of requests awaiting a response
func (c *Client) Pending() int {
	return c.pending.Len()
}

// Status is a snapshot of the client
type Status struct {
	State        ConnState `json:"-"`
	StateName    string    `json:"state"`
	Endpoint     string    `json:"endpoint,omitempty"`
	Token        string    `json:"token,omitempty"`
	Attempts     int       `json:"attempts"`
	LastActivity time.Time `json:"last_activity,omitempty"`
	Pending      int       `json:"pending"`
	LastError    string    `json:"last_error,omitempty"`
}

// Status returns a snapshot of the client
func (c *Client) Status() Status {
	c.mu.RLock()
	st := Status{
		State:     c.state,
		StateName: c.state.String(),
		Token:     c.token,
		Attempts:  c.attempts,
	}
	if c.conn != nil {
		st.Endpoint = c.conn.endpoint
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.mu.RUnlock()

	if ts := c.lastActivity.Load(); ts > 0 {
		st.LastActivity = time.Unix(0, ts)
	}
	st.Pending = c.pending.Len()
	return st
}

// Dispose stops the monitor, fails every pending request with ErrDisposed and
// closes the socket. The client cannot be reused.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	conn := c.conn
	taskName := c.monitorTask
	c.monitorTask = ""
	c.token = ""
	c.state = StateClosed
	c.mu.Unlock()

	if taskName != "" {
		c.scheduler.CancelTask(taskName)
	}
	if c.ownSched {
		c.scheduler.Stop()
	}
	if n := c.pending.FailAll(ErrDisposed); n > 0 {
		c.log.Debugf("disposed with %d pending requests", n)
	}
	if conn != nil {
		conn.close()
	}
	c.metrics.setPending(0)
	c.log.Info("WS transport disposed")
}

// activeConnection returns the registered connection or ErrNoConnection
func (c *Client) activeConnection() (*connection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.disposed {
		return nil, ErrDisposed
	}
	if c.conn == nil || c.state != StateConnected || !c.conn.isOpen() {
		return nil, ErrNoConnection
	}
	return c.conn, nil
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) readLoop(conn *connection) {
	defer c.onClose(conn)

	for {
		data, err := conn.read()
		if err != nil {
			if conn.isOpen() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.onError(conn, err)
			}
			return
		}
		c.touch()
		c.onMessage(data)
	}
}

func (c *Client) onMessage(data []byte) {
	in, err := protocol.DecodeInbound(data)
	if err != nil {
		c.metrics.protocolError()
		c.log.Warnf("dropping inbound frame: %v", err)
		return
	}

	if in.Event != nil {
		c.metrics.peerEvent()
		if c.OnPeerEvent != nil {
			c.OnPeerEvent(in.Event)
		}
		return
	}

	resp := in.Response
	var respErr error
	if resp.Error != nil {
		respErr = resp.Error
	}
	if c.pending.Resolve(resp.Txn, resp.Payload, respErr) {
		c.metrics.response(respErr != nil)
		c.metrics.setPending(c.pending.Len())
		return
	}

	if respErr != nil {
		c.metrics.orphaned()
		c.log.Warnf("response for unknown txn %s: %v", resp.Txn, respErr)
	}
}

func (c *Client) onError(conn *connection, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.state = StateErrored
		c.lastErr = err
	}
	c.mu.Unlock()

	c.log.Errorf("WS transport %s error: %v", conn.endpoint, err)
	if current && c.OnConnectionError != nil {
		c.OnConnectionError(conn.endpoint, err)
	}
}

func (c *Client) onClose(conn *connection) {
	conn.close()

	c.mu.Lock()
	if c.conn == conn && c.state != StateErrored && !c.disposed {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if n := c.pending.FailOwner(conn.id, ErrConnectionClosed); n > 0 {
		c.log.Warnf("WS transport %s closed with %d pending requests", conn.endpoint, n)
		c.metrics.setPending(c.pending.Len())
	}
	c.log.Infof("WS transport %s closed", conn.endpoint)
}

// submit registers a pending entry and writes the request built for its txn.
// If the write fails the entry is withdrawn and an error returned; the
// completion is then never invoked.
func (c *Client) submit(conn *connection, build func(txn string) protocol.Request, complete Completion) (string, error) {
	var (
		txn string
		req protocol.Request
	)
	for {
		var err error
		txn, err = protocol.GenerateTxn()
		if err != nil {
			return "", err
		}
		req = build(txn)
		err = c.pending.Add(txn, conn.id, req.Envelope().Action, complete)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateTxn) {
			return "", err
		}
	}

	data, err := protocol.Encode(req)
	if err != nil {
		c.pending.Remove(txn)
		return "", err
	}

	if err := conn.write(data); err != nil {
		if c.pending.Remove(txn) {
			return "", fmt.Errorf("%w: %v", ErrNoConnection, err)
		}
		// connection loss already completed the request
		return txn, nil
	}

	c.metrics.request(req.Envelope().Action)
	c.metrics.setPending(c.pending.Len())
	return txn, nil
}

func endpointString(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func monitorTaskName(host string, port int) string {
	return fmt.Sprintf("ws_check_connections_%s_%d", host, port)
}
