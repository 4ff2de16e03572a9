package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Inbound is a decoded inbound frame. Exactly one field is set.
type Inbound struct {
	Response *Response
	Event    *PeerEvent
}

// Response answers an earlier request with the same txn
type Response struct {
	Txn     string
	Error   *RemoteError
	Msg     string
	Payload json.RawMessage
}

// DecodePayload unmarshals the response payload into v
func (r *Response) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("response %s has no payload", r.Txn)
	}
	return json.Unmarshal(r.Payload, v)
}

// PeerEvent is an unsolicited frame relayed from another peer
type PeerEvent struct {
	Raw json.RawMessage
}

// Decode unmarshals the event into v
func (e *PeerEvent) Decode(v any) error {
	return json.Unmarshal(e.Raw, v)
}

// ProtocolError reports an inbound frame that could not be understood
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// DecodeInbound decodes one inbound frame into a Response or a PeerEvent
func DecodeInbound(data []byte) (*Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &ProtocolError{Reason: "frame is not a JSON object", Err: err}
	}
	if fields == nil {
		return nil, &ProtocolError{Reason: "frame is null"}
	}

	rawTxn, ok := fields["txn"]
	if !ok || isNull(rawTxn) {
		return &Inbound{Event: &PeerEvent{Raw: json.RawMessage(data)}}, nil
	}

	var txn string
	if err := json.Unmarshal(rawTxn, &txn); err != nil {
		return nil, &ProtocolError{Reason: "txn is not a string", Err: err}
	}
	if txn == "" {
		return &Inbound{Event: &PeerEvent{Raw: json.RawMessage(data)}}, nil
	}

	resp := &Response{Txn: txn}
	if raw, ok := fields["payload"]; ok && !isNull(raw) {
		resp.Payload = raw
	}
	if raw, ok := fields["msg"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &resp.Msg); err != nil {
			resp.Msg = string(raw)
		}
	}
	if raw, ok := fields["error"]; ok {
		resp.Error = parseRemoteError(raw)
		if resp.Error != nil {
			resp.Error.Txn = txn
			resp.Error.Msg = resp.Msg
		}
	}

	return &Inbound{Response: resp}, nil
}

// parseRemoteError accepts numeric codes, numeric strings ("0x4007", "16391")
// and free text. Falsy values (null, false, 0, "") mean no error.
func parseRemoteError(raw json.RawMessage) *RemoteError {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &RemoteError{Text: string(raw)}
	}

	switch val := v.(type) {
	case bool:
		if !val {
			return nil
		}
		return &RemoteError{Text: "true"}
	case float64:
		if val == 0 {
			return nil
		}
		return &RemoteError{Code: int(val)}
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if code, err := strconv.ParseInt(s, 0, 64); err == nil {
			return &RemoteError{Code: int(code)}
		}
		return &RemoteError{Text: s}
	default:
		return &RemoteError{Text: string(raw)}
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
