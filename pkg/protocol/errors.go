package protocol

import "fmt"

// Remote error codes reported by transport nodes
const (
	ErrCodePeerUnreachable = 0x4007
)

var errorTexts = map[int]string{
	ErrCodePeerUnreachable: "peer unreachable",
}

// ErrorText returns a short description of a known remote error code
func ErrorText(code int) string {
	if text, ok := errorTexts[code]; ok {
		return text
	}
	return "unknown error"
}

// RemoteError is an error reported by the node in a response
type RemoteError struct {
	Code int
	Text string // set when the node sent a non-numeric error
	Msg  string
	Txn  string
}

func (e *RemoteError) Error() string {
	var s string
	if e.Text != "" {
		s = "remote error: " + e.Text
	} else {
		s = fmt.Sprintf("remote error 0x%04x (%s)", e.Code, ErrorText(e.Code))
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// IsPeerUnreachable reports whether the node could not reach the target peer.
// This is a soft failure: the peer is offline, the transport is fine.
func (e *RemoteError) IsPeerUnreachable() bool {
	return e.Code == ErrCodePeerUnreachable
}
