package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

// PutAsync stores value under key on the node. complete may be nil.
func (c *Client) PutAsync(key string, value any, complete Completion) error {
	if c.identity.Account == "" || c.identity.PublicKeyHex == "" {
		return ErrNotAuthenticated
	}
	if key == "" {
		return &ValidationError{Field: "key", Reason: "empty"}
	}
	raw, err := marshalValue(value)
	if err != nil {
		return &ValidationError{Field: "value", Reason: err.Error()}
	}

	conn, err := c.activeConnection()
	if err != nil {
		return err
	}
	if complete == nil {
		complete = func(json.RawMessage, error) {}
	}

	_, err = c.submit(conn, func(txn string) protocol.Request {
		return &protocol.DHTPutRequest{
			RequestHeader: protocol.RequestHeader{Action: protocol.ActionDHTPut, Txn: txn},
			Key:           key,
			Value:         raw,
			Account:       c.identity.Account,
			PublicKeyHex:  c.identity.PublicKeyHex,
		}
	}, complete)
	return err
}

// Put stores value under key and waits for the node to acknowledge
func (c *Client) Put(ctx context.Context, key string, value any) error {
	done := make(chan error, 1)
	if err := c.PutAsync(key, value, func(_ json.RawMessage, err error) {
		done <- err
	}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetAsync retrieves the value stored under key
func (c *Client) GetAsync(key string, complete Completion) error {
	if complete == nil {
		return ErrNilCompletion
	}
	if key == "" {
		return &ValidationError{Field: "key", Reason: "empty"}
	}

	conn, err := c.activeConnection()
	if err != nil {
		return err
	}

	_, err = c.submit(conn, func(txn string) protocol.Request {
		return &protocol.DHTGetRequest{
			RequestHeader: protocol.RequestHeader{Action: protocol.ActionDHTGet, Txn: txn},
			Key:           key,
		}
	}, complete)
	return err
}

// Get retrieves the value stored under key
func (c *Client) Get(ctx context.Context, key string) (json.RawMessage, error) {
	type result struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan result, 1)
	if err := c.GetAsync(key, func(payload json.RawMessage, err error) {
		done <- result{payload, err}
	}); err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PeerSend relays payload to contact through the node. Delivery failures are
// reported through OnContactWarning (peer unreachable) or OnContactError.
func (c *Client) PeerSend(contact *protocol.Contact, payload any) error {
	raw, err := marshalValue(payload)
	if err != nil {
		return &ValidationError{Field: "payload", Reason: err.Error()}
	}
	if contact == nil {
		return &ValidationError{Field: "contact", Reason: "missing"}
	}
	if contact.Address == "" || contact.Port <= 0 {
		return &ValidationError{Field: "contact transport", Reason: "address and port are required"}
	}
	if contact.PKeyHash == "" {
		return &ValidationError{Field: "contact pkeyhash", Reason: "empty"}
	}

	conn, err := c.activeConnection()
	if err != nil {
		return fmt.Errorf("web socket with %s:%d does not exist for contact: %w", contact.Address, contact.Port, err)
	}

	_, err = c.submit(conn, func(txn string) protocol.Request {
		return &protocol.PeerMsgRequest{
			RequestHeader: protocol.RequestHeader{Action: protocol.ActionPeerMsg, Txn: txn},
			Contact:       protocol.ContactRef{PKHash: contact.PKeyHash},
			Payload:       raw,
		}
	}, func(_ json.RawMessage, err error) {
		if err != nil {
			c.reportContactFailure(contact, conn.endpoint, err)
		}
	})
	return err
}

func (c *Client) reportContactFailure(contact *protocol.Contact, endpoint string, err error) {
	reason := fmt.Sprintf("contact %s cannot be reached at WS host %s: %v", contact.Name, endpoint, err)

	var remote *protocol.RemoteError
	if errors.As(err, &remote) && remote.IsPeerUnreachable() {
		c.log.Info(reason)
		if c.OnContactWarning != nil {
			c.OnContactWarning(contact, reason)
		}
		return
	}

	c.log.Error(reason)
	if c.OnContactError != nil {
		c.OnContactError(contact, reason)
	}
}

// Ping checks that the session is alive. Any failure yields false.
func (c *Client) Ping(ctx context.Context) bool {
	conn, err := c.activeConnection()
	if err != nil {
		return false
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	type result struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan result, 1)
	_, err = c.submit(conn, func(txn string) protocol.Request {
		return &protocol.PingRequest{
			RequestHeader: protocol.RequestHeader{Action: protocol.ActionPing, Txn: txn},
			Token:         token,
			PKHash:        c.identity.PKHash,
		}
	}, func(payload json.RawMessage, err error) {
		done <- result{payload, err}
	})
	if err != nil {
		return false
	}

	select {
	case res := <-done:
		return res.err == nil && isPong(res.payload)
	case <-ctx.Done():
		return false
	}
}

// isPong accepts {"pong":1} and {"pong":"1"}
func isPong(payload json.RawMessage) bool {
	var p protocol.PongPayload
	if len(payload) == 0 || json.Unmarshal(payload, &p) != nil {
		return false
	}
	return p.Alive()
}

// marshalValue encodes a put value or peer payload. json.RawMessage is sent
// as is; []byte is sent as a JSON string like string.
func marshalValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, errors.New("missing")
	}

	var raw json.RawMessage
	switch val := v.(type) {
	case json.RawMessage:
		raw = val
	case []byte:
		b, err := json.Marshal(string(val))
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, string(trimmed) == "null", string(trimmed) == `""`:
		return nil, errors.New("empty")
	case !json.Valid(trimmed):
		return nil, errors.New("not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}
