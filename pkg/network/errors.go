package network

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

var (
	ErrNoConnection        = errors.New("web socket does not exist")
	ErrNotAuthenticated    = errors.New("the account is not initialized")
	ErrNilCompletion       = errors.New("invalid completion callback")
	ErrValidation          = errors.New("invalid request")
	ErrRequestTimeout      = errors.New("request timed out")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrDisposed            = errors.New("transport disposed")
	ErrDuplicateTxn        = errors.New("duplicate transaction id")
	ErrInvalidEndpoint     = errors.New("invalid endpoint")
	ErrConnectTimeout      = errors.New("connect timed out")
	ErrRegistrationRefused = errors.New("registration refused")
)

// ConnectErrorKind classifies connect failures
type ConnectErrorKind int

const (
	ConnectInvalid ConnectErrorKind = iota
	ConnectTimeout
	ConnectRefused
	ConnectTransport
)

func (k ConnectErrorKind) String() string {
	switch k {
	case ConnectInvalid:
		return "invalid endpoint"
	case ConnectTimeout:
		return "timeout"
	case ConnectRefused:
		return "refused"
	case ConnectTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// ConnectError is returned by Connect
type ConnectError struct {
	Kind     ConnectErrorKind
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("WS transport %s: connect %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels so callers can use errors.Is
func (e *ConnectError) Is(target error) bool {
	switch target {
	case ErrInvalidEndpoint:
		return e.Kind == ConnectInvalid
	case ErrConnectTimeout:
		return e.Kind == ConnectTimeout
	case ErrRegistrationRefused:
		return e.Kind == ConnectRefused
	}
	return false
}

// RequestTimeoutError is delivered to a completion whose request outlived the
// reclamation window
type RequestTimeoutError struct {
	Txn     string
	Action  protocol.Action
	Elapsed time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("WS request txn %s (%s) timed out after %v", e.Txn, e.Action, e.Elapsed.Round(time.Millisecond))
}

func (e *RequestTimeoutError) Is(target error) bool {
	return target == ErrRequestTimeout
}

// ValidationError rejects a request before anything is written to the socket
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
