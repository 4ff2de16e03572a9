package network

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
)

// ParseEndpoint splits a transport node address into host and port.
// Accepted forms:
//
//	/ip4/10.0.0.1/tcp/32318
//	/dns4/node.example.org/tcp/32318/ws
//	ws://node.example.org:32318
//	node.example.org:32318
func ParseEndpoint(s string) (string, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}

	switch {
	case strings.HasPrefix(s, "/"):
		return parseMultiaddr(s)
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
		}
		if u.Scheme != "ws" {
			return "", 0, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
		}
		return splitHostPort(u.Host)
	default:
		return splitHostPort(s)
	}
}

func parseMultiaddr(s string) (string, int, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	var host string
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if v, err := addr.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: %s has no host component", ErrInvalidEndpoint, s)
	}

	portStr, err := addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s has no tcp component", ErrInvalidEndpoint, s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad port %q", ErrInvalidEndpoint, portStr)
	}
	return host, port, validateEndpoint(host, port)
}

func splitHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad port %q", ErrInvalidEndpoint, portStr)
	}
	return host, port, validateEndpoint(host, port)
}

func validateEndpoint(host string, port int) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidEndpoint)
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, port)
	}
	return nil
}

// ConnectEndpoint parses endpoint and connects to it
func (c *Client) ConnectEndpoint(ctx context.Context, endpoint string) (*SessionInfo, error) {
	host, port, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, &ConnectError{Kind: ConnectInvalid, Endpoint: endpoint, Err: err}
	}
	return c.Connect(ctx, host, port)
}
