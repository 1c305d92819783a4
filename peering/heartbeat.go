package peering

import (
	"context"
	"time"
)

// RunHeartbeatLoop broadcasts a HEARTBEAT envelope to every known peer every
// interval until ctx is cancelled. payload is rebuilt on each tick via
// buildPayload so the caller can stamp a fresh timestamp/sequence without
// this package knowing the payload's shape.
func (ps *Peers) RunHeartbeatLoop(ctx context.Context, interval time.Duration, ttl time.Duration, buildPayload func() []byte) {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ps.Broadcast(ctx, MsgHeartbeat, buildPayload(), ttl)
		}
	}
}

// AliveCount returns how many roster peers have sent a message within the
// liveness window, for status reporting.
func (ps *Peers) AliveCount() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	n := 0
	for _, p := range ps.peers {
		if p.isAlive() {
			n++
		}
	}
	return n
}
