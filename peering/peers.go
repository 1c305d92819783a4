package peering

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

const envelopeProtocol = "/finp2p/envelope/1.0.0"

// Config configures a Peers host.
type Config struct {
	RouterID   string
	ListenPort int
	HostKey    crypto.PrivKey     // libp2p transport identity
	SignKey    ed25519.PrivateKey // signs outgoing envelopes
	Peers      []PeerSpec         // statically configured roster, added before the host accepts traffic
}

// PeerSpec describes one statically configured peer router.
type PeerSpec struct {
	RouterID  string
	Endpoint  string
	Addr      multiaddr.Multiaddr // nil when the URL carries no libp2p host id
	PublicKey []byte
	Ledgers   []string
}

// ParsePeerURL parses one configured peer entry of the form
//
//	finp2p://<routerId>@<host>:<port>?pk=<base64 ed25519 key>&id=<libp2p host id>
//
// pk is the peer's envelope-signing public key; a peer without one has every
// message dropped at verification. id is the peer's libp2p host identity;
// without it the peer can still dial in and be verified, but cannot be
// dialed out to.
func ParsePeerURL(raw string) (PeerSpec, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return PeerSpec{}, fmt.Errorf("peering: parse peer url %q: %w", raw, err)
	}
	if u.User == nil || u.User.Username() == "" {
		return PeerSpec{}, fmt.Errorf("peering: peer url %q carries no router id", raw)
	}
	spec := PeerSpec{RouterID: u.User.Username(), Endpoint: u.Host}

	if pk := u.Query().Get("pk"); pk != "" {
		key, err := decodeKey(pk)
		if err != nil {
			return PeerSpec{}, fmt.Errorf("peering: peer url %q: malformed pk: %w", raw, err)
		}
		if len(key) != ed25519.PublicKeySize {
			return PeerSpec{}, fmt.Errorf("peering: peer url %q: pk is %d bytes, want %d", raw, len(key), ed25519.PublicKeySize)
		}
		spec.PublicKey = key
	}

	if id := u.Query().Get("id"); id != "" {
		host, port, err := net.SplitHostPort(u.Host)
		if err != nil {
			return PeerSpec{}, fmt.Errorf("peering: peer url %q: %w", raw, err)
		}
		proto := "dns4"
		if ip := net.ParseIP(host); ip != nil {
			proto = "ip4"
			if ip.To4() == nil {
				proto = "ip6"
			}
		}
		addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%s/p2p/%s", proto, host, port, id))
		if err != nil {
			return PeerSpec{}, fmt.Errorf("peering: peer url %q: %w", raw, err)
		}
		spec.Addr = addr
	}
	return spec, nil
}

// decodeKey accepts both URL-safe and standard base64, with or without
// padding, since both show up in operator-managed config files.
func decodeKey(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding} {
		if key, err := enc.DecodeString(s); err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("not valid base64")
}

// Handler is invoked for every accepted envelope of a given MessageType.
type Handler func(from string, env *Envelope)

// Peers owns the libp2p host, the router roster, and envelope dispatch.
type Peers struct {
	mu       sync.RWMutex
	cfg      Config
	log      *zap.SugaredLogger
	host     host.Host
	peers    map[string]*Peer // keyed by routerID
	handlers map[MessageType]Handler
}

// NewDummy builds a Peers with no network host, for unit tests that only
// exercise roster/liveness/envelope-construction logic.
func NewDummy(routerID string, signKey ed25519.PrivateKey) *Peers {
	return &Peers{
		cfg:      Config{RouterID: routerID, SignKey: signKey},
		log:      zap.NewNop().Sugar(),
		peers:    make(map[string]*Peer),
		handlers: make(map[MessageType]Handler),
	}
}

// New builds a Peers backed by a real libp2p TCP host. Transport security
// is disabled: the envelope signature is this layer's authentication, not
// the libp2p handshake.
func New(ctx context.Context, log *zap.SugaredLogger, cfg Config) (*Peers, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.HostKey == nil {
		return nil, fmt.Errorf("peering: HostKey is required")
	}
	h, err := libp2p.New(
		libp2p.Identity(cfg.HostKey),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort)),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.NoSecurity,
	)
	if err != nil {
		return nil, fmt.Errorf("peering: create libp2p host: %w", err)
	}

	ps := &Peers{
		cfg:      cfg,
		log:      log,
		host:     h,
		peers:    make(map[string]*Peer),
		handlers: make(map[MessageType]Handler),
	}
	for _, spec := range cfg.Peers {
		if err := ps.AddPeer(spec.RouterID, spec.Addr, spec.Endpoint, spec.PublicKey, spec.Ledgers); err != nil {
			_ = h.Close()
			return nil, err
		}
	}
	h.SetStreamHandler(envelopeProtocol, ps.streamHandler)
	return ps, nil
}

// OnMessage registers the handler invoked for every accepted envelope of
// msgType. Router Core calls this once per message type during wiring.
func (ps *Peers) OnMessage(msgType MessageType, h Handler) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.handlers[msgType] = h
}

// AddPeer registers a known router in the roster. addr may be nil for a
// roster-only peer (no libp2p host id known yet): its messages can still be
// verified when it dials in, but it cannot be dialed out to.
func (ps *Peers) AddPeer(routerID string, addr multiaddr.Multiaddr, endpoint string, publicKey []byte, ledgers []string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var id peer.ID
	if addr != nil && ps.host != nil {
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			return fmt.Errorf("peering: parse multiaddr for %s: %w", routerID, err)
		}
		ps.host.Peerstore().AddAddr(info.ID, addr, peerstore.PermanentAddrTTL)
		id = info.ID
	}
	ps.peers[routerID] = newPeer(routerID, id, endpoint, publicKey, ledgers)
	return nil
}

// RemovePeer drops routerID from the roster.
func (ps *Peers) RemovePeer(routerID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.peers, routerID)
}

// Topology snapshots the current roster into a NetworkTopology.
// Adjacency is this router's own view: it is directly connected (in the
// roster) to every peer it knows about, and has no visibility into peers'
// connections to each other.
func (ps *Peers) Topology() NetworkTopology {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	routers := make(map[string]*RouterInfo, len(ps.peers))
	for id, p := range ps.peers {
		routers[id] = p.info()
	}
	return NetworkTopology{
		Routers:   routers,
		Adjacency: map[string][]string{ps.cfg.RouterID: maps.Keys(ps.peers)},
	}
}

// PeerIDs returns every routerID currently in the roster.
func (ps *Peers) PeerIDs() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return maps.Keys(ps.peers)
}

func (ps *Peers) getPeer(routerID string) *Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.peers[routerID]
}

// Send builds a signed envelope and delivers it to toRouterID over the
// libp2p stream. A NewDummy-backed Peers has no host and returns the built
// envelope without transmitting, so unit tests can inspect it directly.
func (ps *Peers) Send(ctx context.Context, toRouterID string, msgType MessageType, payload []byte, ttl time.Duration) (*Envelope, error) {
	env := &Envelope{
		ID:         uuid.NewString(),
		Type:       msgType,
		FromRouter: ps.cfg.RouterID,
		ToRouter:   toRouterID,
		Payload:    payload,
		Timestamp:  time.Now(),
		TTLMillis:  ttl.Milliseconds(),
	}
	env.Signature = signPayload(ps.cfg.SignKey, payload)

	if ps.host == nil {
		return env, nil
	}
	p := ps.getPeer(toRouterID)
	if p == nil {
		return nil, fmt.Errorf("peering: unknown router %s", toRouterID)
	}

	blob, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("peering: marshal envelope: %w", err)
	}
	stream, err := ps.host.NewStream(ctx, p.id, envelopeProtocol)
	if err != nil {
		return nil, fmt.Errorf("peering: open stream to %s: %w", toRouterID, err)
	}
	defer stream.Close()
	if err := writeFrame(stream, blob); err != nil {
		return nil, fmt.Errorf("peering: write envelope to %s: %w", toRouterID, err)
	}
	return env, nil
}

// Broadcast sends msgType to every peer in the roster.
func (ps *Peers) Broadcast(ctx context.Context, msgType MessageType, payload []byte, ttl time.Duration) int {
	sent := 0
	for _, id := range ps.PeerIDs() {
		if _, err := ps.Send(ctx, id, msgType, payload, ttl); err != nil {
			ps.log.Warnw("broadcast send failed", "to", id, "type", msgType, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (ps *Peers) streamHandler(stream network.Stream) {
	defer stream.Close()

	blob, err := readFrame(stream)
	if err != nil {
		ps.log.Errorw("peering: error reading frame", "error", err)
		return
	}

	var env Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		ps.log.Errorw("peering: malformed envelope", "error", err)
		return
	}

	if env.Expired(time.Now()) {
		ps.log.Warnw("peering: dropped expired message", "from", env.FromRouter, "type", env.Type)
		return
	}

	// only messages from roster peers with a verifiable signature reach
	// dispatch
	p := ps.getPeer(env.FromRouter)
	if p == nil {
		ps.log.Warnw("peering: dropped message from unknown router", "from", env.FromRouter, "type", env.Type)
		return
	}
	if !verifyPayload(p.publicKey, env.Payload, env.Signature) {
		ps.log.Warnw("peering: signature verification failed", "from", env.FromRouter)
		return
	}
	p.evidenceActivity()

	ps.mu.RLock()
	h, ok := ps.handlers[env.Type]
	ps.mu.RUnlock()
	if !ok {
		ps.log.Infow("peering: unknown message type, ignoring", "type", env.Type, "from", env.FromRouter)
		return
	}
	h(env.FromRouter, &env)
}

// Close shuts down the libp2p host, if any.
func (ps *Peers) Close() error {
	if ps.host == nil {
		return nil
	}
	return ps.host.Close()
}

func signPayload(key ed25519.PrivateKey, payload []byte) []byte {
	if key == nil {
		return nil
	}
	return ed25519.Sign(key, payload)
}

func verifyPayload(pub ed25519.PublicKey, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		// no usable public key for this peer: unverifiable is not verified
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}

// writeFrame/readFrame are a 4-byte-length-prefixed framing over the raw
// stream.
func writeFrame(w io.Writer, data []byte) error {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(size[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
