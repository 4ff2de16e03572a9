package network

import "time"

// checkConnection is the liveness task scheduled after registration. It never
// touches the network: it demotes a dead socket and reclaims requests that
// have waited longer than the request timeout.
func (c *Client) checkConnection() {
	c.heartbeat()

	expired := c.pending.Expire(time.Now(), c.config.RequestTimeout)
	for _, txn := range expired {
		c.log.Warnf("WS request txn %s timed out", txn)
	}
	if len(expired) > 0 {
		c.metrics.timeouts(len(expired))
	}
	c.metrics.setPending(c.pending.Len())
}

func (c *Client) heartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return
	}
	if c.conn == nil || !c.conn.isOpen() {
		c.state = StateDisconnected
		c.log.Warn("WS transport heartbeat: socket is not open")
	}
}
