package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Request is any outbound request frame
type Request interface {
	Envelope() *RequestHeader
}

// RequestHeader carries the fields common to every request
type RequestHeader struct {
	Action Action `json:"action"`
	Txn    string `json:"txn"`
}

// Envelope returns the common request fields
func (h *RequestHeader) Envelope() *RequestHeader {
	return h
}

// RegisterRequest announces the local account to the transport node
type RegisterRequest struct {
	RequestHeader
	Account   string `json:"account"`
	PublicKey string `json:"publickey"`
	PKHash    string `json:"pkhash"`
	Transport string `json:"transport"`
}

// DHTPutRequest stores a value under key
type DHTPutRequest struct {
	RequestHeader
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	Account      string          `json:"account"`
	PublicKeyHex string          `json:"publickeyhex"`
}

// DHTGetRequest retrieves the value stored under key
type DHTGetRequest struct {
	RequestHeader
	Key string `json:"key"`
}

// PeerMsgRequest relays payload to the peer identified by Contact.PKHash
type PeerMsgRequest struct {
	RequestHeader
	Contact ContactRef      `json:"contact"`
	Payload json.RawMessage `json:"payload"`
}

// PingRequest checks that the session is still alive on the node
type PingRequest struct {
	RequestHeader
	Token  string `json:"token"`
	PKHash string `json:"pkhash"`
}

// RegisterPayload is the payload of a successful register response
type RegisterPayload struct {
	Token string `json:"token"`
}

// PongPayload is the payload of a ping response. Nodes send pong as a
// number or a numeric string.
type PongPayload struct {
	Pong json.RawMessage `json:"pong"`
}

// Alive reports whether the node answered pong 1
func (p *PongPayload) Alive() bool {
	v := strings.Trim(string(bytes.TrimSpace(p.Pong)), `"`)
	return v == "1" || v == "1.0"
}

// Encode serializes a request into one text frame
func Encode(req Request) ([]byte, error) {
	return json.Marshal(req)
}
