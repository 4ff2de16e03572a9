package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
	"github.com/ZentaChain/zentalk-wsnet/pkg/dht"
	"github.com/ZentaChain/zentalk-wsnet/pkg/network"
	"github.com/ZentaChain/zentalk-wsnet/pkg/peercomm"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
	"github.com/ZentaChain/zentalk-wsnet/pkg/storage"
)

type fakeTransport struct {
	mu      sync.Mutex
	values  map[string]json.RawMessage
	sent    []any
	sendErr error
	getErr  error
	alive   bool
	state   network.ConnState
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{values: make(map[string]json.RawMessage), alive: true, state: network.StateConnected}
}

func (f *fakeTransport) Put(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.values[key] = raw
	return nil
}

func (f *fakeTransport) Get(_ context.Context, key string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return nil, &protocol.RemoteError{Code: protocol.ErrCodePeerUnreachable, Txn: "t"}
	}
	return v, nil
}

func (f *fakeTransport) PeerSend(contact *protocol.Contact, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeTransport) Ping(context.Context) bool { return f.alive }

func (f *fakeTransport) Status() network.Status {
	return network.Status{State: f.state, StateName: f.state.String(), Endpoint: "127.0.0.1:32318", Attempts: 1}
}

type testServer struct {
	server    *Server
	transport *fakeTransport
	db        *storage.DB
	bobKeys   *crypto.KeyPair
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	aliceKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	bobKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	require.NoError(t, db.SaveContact(&protocol.Contact{
		Name:      "bob",
		Address:   "10.0.0.2",
		Port:      32318,
		PKeyHash:  bobKeys.PublicKeyHash(),
		PublicKey: bobKeys.PublicKeyHex(),
	}))

	tr := newFakeTransport()
	server, err := NewServer(Deps{
		Transport: tr,
		Channel:   peercomm.NewChannel("alice", aliceKeys, tr, db, nil),
		DB:        db,
		Gatherer:  prometheus.NewRegistry(),
	}, DefaultConfig())
	require.NoError(t, err)

	return &testServer{server: server, transport: tr, db: db, bobKeys: bobKeys}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestNewServerRequiresTransport(t *testing.T) {
	_, err := NewServer(Deps{}, nil)
	assert.Error(t, err)
}

func TestDHTPutGet(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("POST", "/api/v1/dht/put", map[string]any{"key": "k1", "value": map[string]string{"a": "b"}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do("GET", "/api/v1/dht/get/k1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"a":"b"}`, string(resp.Data))

	w = ts.do("POST", "/api/v1/dht/put", map[string]any{"value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFindContact(t *testing.T) {
	ts := newTestServer(t)
	carolKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	_, err = dht.PublishContact(context.Background(), ts.transport, carolKeys, protocol.Contact{
		Name:    "carol",
		Address: "10.0.0.3",
		Port:    32318,
	}, time.Hour)
	require.NoError(t, err)

	w := ts.do("GET", "/api/v1/dht/contact/"+carolKeys.PublicKeyHash()+"?save=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data protocol.Contact `json:"data"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "carol", resp.Data.Name)
	assert.Equal(t, carolKeys.PublicKeyHex(), resp.Data.PublicKey)

	saved, err := ts.db.GetContact("carol")
	require.NoError(t, err)
	assert.Equal(t, carolKeys.PublicKeyHash(), saved.PKeyHash)

	// a record stored under someone else's hash is rejected
	key := dht.ContactKey(ts.bobKeys.PublicKeyHash())
	ts.transport.values[key] = ts.transport.values[dht.ContactKey(carolKeys.PublicKeyHash())]
	w = ts.do("GET", "/api/v1/dht/contact/"+ts.bobKeys.PublicKeyHash(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&protocol.RemoteError{Code: protocol.ErrCodePeerUnreachable}, http.StatusNotFound, "peer_unreachable"},
		{&protocol.RemoteError{Text: "boom"}, http.StatusBadGateway, "remote_error"},
		{network.ErrNoConnection, http.StatusServiceUnavailable, "no_connection"},
		{&network.RequestTimeoutError{Txn: "t", Action: protocol.ActionDHTGet}, http.StatusGatewayTimeout, "timeout"},
		{network.ErrNotAuthenticated, http.StatusForbidden, "not_authenticated"},
		{&network.ValidationError{Field: "key", Reason: "empty"}, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		ts.transport.getErr = tt.err
		w := ts.do("GET", "/api/v1/dht/get/k", nil)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())

		var resp ErrorResponse
		decode(t, w, &resp)
		assert.Equal(t, tt.code, resp.Code)
	}
}

func TestPeerSendPlain(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("POST", "/api/v1/peer/send", PeerSendRequest{Contact: "bob", Payload: json.RawMessage(`{"hello":1}`)})
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.transport.sent, 1)
	assert.JSONEq(t, `{"hello":1}`, string(ts.transport.sent[0].(json.RawMessage)))

	w = ts.do("POST", "/api/v1/peer/send", PeerSendRequest{Contact: "nobody", Payload: json.RawMessage(`1`)})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do("POST", "/api/v1/peer/send", PeerSendRequest{Payload: json.RawMessage(`1`)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPeerSendEncrypted(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("POST", "/api/v1/peer/send", PeerSendRequest{Contact: "bob", Text: "secret", Encrypt: true})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.transport.sent, 1)

	pm := ts.transport.sent[0].(*peercomm.PeerMessage)
	assert.Equal(t, "PEERMSG", pm.Type)
	assert.Equal(t, "alice", pm.Sender)

	bob := peercomm.NewChannel("bob", ts.bobKeys, ts.transport, nil, nil)
	msg, err := bob.Open(pm)
	require.NoError(t, err)
	assert.Equal(t, "secret", msg.Text)
}

func TestPeerSendQueuesWhenOffline(t *testing.T) {
	ts := newTestServer(t)
	ts.transport.sendErr = network.ErrNoConnection

	w := ts.do("POST", "/api/v1/peer/send", PeerSendRequest{Contact: "bob", Payload: json.RawMessage(`"later"`), Queue: true})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do("POST", "/api/v1/peer/send", PeerSendRequest{Contact: "bob", Payload: json.RawMessage(`"now"`)})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = ts.do("GET", "/api/v1/status", nil)
	var status struct {
		Outbox int `json:"outbox"`
	}
	decode(t, w, &status)
	assert.Equal(t, 1, status.Outbox)

	ts.transport.sendErr = nil
	sent, err := ts.db.FlushOutbox(func(c *protocol.Contact, payload json.RawMessage) error {
		return ts.transport.PeerSend(c, payload)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.JSONEq(t, `"later"`, string(ts.transport.sent[0].(json.RawMessage)))
}

func TestFileOffer(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("POST", "/api/v1/peer/file-offer", map[string]any{
		"contact": "bob", "name": "a.txt", "size": 10, "hash": "abc", "type": "text/plain",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.transport.sent, 1)

	w = ts.do("POST", "/api/v1/peer/file-offer", map[string]any{"contact": "bob", "name": "a.txt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContactsCRUD(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("POST", "/api/v1/contacts", protocol.Contact{Name: "carol", Address: "10.0.0.3", Port: 1, PKeyHash: "c"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = ts.do("POST", "/api/v1/contacts", protocol.Contact{Name: "dave"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do("GET", "/api/v1/contacts", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []storage.Contact `json:"data"`
	}
	decode(t, w, &list)
	require.Len(t, list.Data, 2)
	assert.Equal(t, "bob", list.Data[0].Name)
	assert.Equal(t, "carol", list.Data[1].Name)

	w = ts.do("GET", "/api/v1/contacts/carol", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do("DELETE", "/api/v1/contacts/carol", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do("GET", "/api/v1/contacts/carol", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPingStatusHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/api/v1/ping", nil)
	assert.JSONEq(t, `{"alive":true}`, w.Body.String())

	w = ts.do("GET", "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Transport network.Status `json:"transport"`
	}
	decode(t, w, &status)
	assert.Equal(t, "connected", status.Transport.StateName)

	w = ts.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ts.transport.state = network.StateClosed
	w = ts.do("GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	network.NewMetrics(reg).Requests.WithLabelValues("dhtget").Inc()

	server, err := NewServer(Deps{Transport: newFakeTransport(), Gatherer: reg}, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `wsnet_requests_total{action="dhtget"} 1`)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("GET", "/health", nil)
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	w = httptest.NewRecorder()
	ts.server.router.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("OPTIONS", "/api/v1/dht/put", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2)
	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.False(t, limiter.Allow("1.2.3.4"))
	assert.True(t, limiter.Allow("5.6.7.8"))
}
