package peering

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// aliveDuration is the heartbeat liveness window: a peer is alive if a
// message (of any type) was received within the last three default
// heartbeat intervals.
const aliveDuration = 3 * defaultHeartbeatInterval

const defaultHeartbeatInterval = 10 * time.Second

// Peer tracks one known router's libp2p identity, roster metadata, and
// liveness.
type Peer struct {
	mutex sync.RWMutex

	routerID  string
	id        peer.ID
	endpoint  string
	publicKey []byte
	ledgers   []string
	lastMsg   time.Time
	whenAdded time.Time
}

func newPeer(routerID string, id peer.ID, endpoint string, publicKey []byte, ledgers []string) *Peer {
	return &Peer{
		routerID:  routerID,
		id:        id,
		endpoint:  endpoint,
		publicKey: publicKey,
		ledgers:   ledgers,
		whenAdded: time.Now(),
	}
}

func (p *Peer) isAlive() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return !p.lastMsg.IsZero() && time.Since(p.lastMsg) < aliveDuration
}

func (p *Peer) evidenceActivity() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.lastMsg = time.Now()
}

func (p *Peer) lastSeen() time.Time {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.lastMsg
}

func (p *Peer) info() *RouterInfo {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	status := StatusOffline
	if !p.lastMsg.IsZero() && time.Since(p.lastMsg) < aliveDuration {
		status = StatusOnline
	}
	return &RouterInfo{
		ID:               p.routerID,
		Endpoint:         p.endpoint,
		PublicKey:        append([]byte(nil), p.publicKey...),
		SupportedLedgers: append([]string(nil), p.ledgers...),
		Status:           status,
		LastSeen:         p.lastMsg,
	}
}
