package network

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Reconnector keeps a client registered with one of the pool's nodes.
// The client itself never reconnects; this is the policy callers opt into.
type Reconnector struct {
	Client *Client
	Pool   *NodePool
	Log    *zap.SugaredLogger

	CheckInterval time.Duration
	MinBackoff    time.Duration
	MaxBackoff    time.Duration

	OnConnected func(*SessionInfo)
}

// NewReconnector creates a reconnector with the default backoff
func NewReconnector(client *Client, pool *NodePool, log *zap.SugaredLogger) *Reconnector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconnector{
		Client:        client,
		Pool:          pool,
		Log:           log,
		CheckInterval: time.Second,
		MinBackoff:    time.Second,
		MaxBackoff:    30 * time.Second,
	}
}

// Run connects and reconnects until ctx is done or the client is disposed
func (r *Reconnector) Run(ctx context.Context) error {
	backoff := r.MinBackoff

	for {
		if !r.Client.IsConnected() {
			session, err := r.Pool.ConnectAny(ctx, r.Client)
			switch {
			case err == nil:
				r.Log.Infof("✅ Registered with %s", session.Endpoint)
				backoff = r.MinBackoff
				if r.OnConnected != nil {
					r.OnConnected(session)
				}
			case errors.Is(err, ErrDisposed), errors.Is(err, ErrPoolClosed):
				return err
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				r.Log.Warnf("🔄 Connection failed, reconnecting in %v: %v", backoff, err)
				if !sleepCtx(ctx, backoff) {
					return ctx.Err()
				}
				backoff *= 2
				if backoff > r.MaxBackoff {
					backoff = r.MaxBackoff
				}
				continue
			}
		}

		if !sleepCtx(ctx, r.CheckInterval) {
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
