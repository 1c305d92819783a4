package peering

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeExpired(t *testing.T) {
	env := &Envelope{Timestamp: time.Now().Add(-2 * time.Second), TTLMillis: 1000}
	require.True(t, env.Expired(time.Now()))

	env2 := &Envelope{Timestamp: time.Now(), TTLMillis: 5000}
	require.False(t, env2.Expired(time.Now()))

	env3 := &Envelope{Timestamp: time.Now().Add(-time.Hour)}
	require.False(t, env3.Expired(time.Now()), "zero TTL never expires")
}

func TestSendBuildsSignedEnvelopeWithoutHost(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	ps := NewDummy("routerA", priv)
	env, err := ps.Send(context.Background(), "routerB", MsgHeartbeat, []byte("payload"), time.Second)
	require.NoError(t, err)
	require.Equal(t, "routerA", env.FromRouter)
	require.Equal(t, "routerB", env.ToRouter)
	require.True(t, ed25519.Verify(pub, env.Payload, env.Signature))
}

func TestRosterLivenessAndTopology(t *testing.T) {
	ps := NewDummy("routerA", nil)
	require.NoError(t, ps.AddPeer("routerB", nil, "routerb.local:9000", nil, []string{"mock"}))

	topo := ps.Topology()
	require.Contains(t, topo.Routers, "routerB")
	require.Equal(t, StatusOffline, topo.Routers["routerB"].Status)

	p := ps.getPeer("routerB")
	p.evidenceActivity()
	require.True(t, p.isAlive())

	topo = ps.Topology()
	require.Equal(t, StatusOnline, topo.Routers["routerB"].Status)

	ps.RemovePeer("routerB")
	require.Empty(t, ps.PeerIDs())
}

func TestParsePeerURL(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostPriv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	hostID, err := peer.IDFromPrivateKey(hostPriv)
	require.NoError(t, err)

	raw := fmt.Sprintf("finp2p://router-b@10.0.0.7:9000?pk=%s&id=%s",
		base64.RawURLEncoding.EncodeToString(pub), hostID.String())
	spec, err := ParsePeerURL(raw)
	require.NoError(t, err)
	require.Equal(t, "router-b", spec.RouterID)
	require.Equal(t, "10.0.0.7:9000", spec.Endpoint)
	require.Equal(t, []byte(pub), spec.PublicKey)
	require.NotNil(t, spec.Addr)
	require.Contains(t, spec.Addr.String(), "/ip4/10.0.0.7/tcp/9000/p2p/")
}

func TestParsePeerURLWithoutHostID(t *testing.T) {
	spec, err := ParsePeerURL("finp2p://router-b@peer-b.example.com:9000")
	require.NoError(t, err)
	require.Equal(t, "router-b", spec.RouterID)
	require.Nil(t, spec.Addr)
	require.Empty(t, spec.PublicKey)
}

func TestParsePeerURLRejectsMissingRouterID(t *testing.T) {
	_, err := ParsePeerURL("https://peer-b.example.com:9000")
	require.Error(t, err)
}

func TestParsePeerURLRejectsBadKey(t *testing.T) {
	_, err := ParsePeerURL("finp2p://router-b@peer-b.example.com:9000?pk=dG9vLXNob3J0")
	require.Error(t, err)
}

// verifyPayload must never treat "no key on file" as verified.
func TestVerifyPayloadRejectsUnknownKey(t *testing.T) {
	require.False(t, verifyPayload(nil, []byte("payload"), nil))

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, []byte("payload"))
	require.True(t, verifyPayload(pub, []byte("payload"), sig))
	require.False(t, verifyPayload(pub, []byte("tampered"), sig))
}

func TestOnMessageDispatch(t *testing.T) {
	ps := NewDummy("routerA", nil)
	received := make(chan string, 1)
	ps.OnMessage(MsgHeartbeat, func(from string, env *Envelope) {
		received <- from
	})

	env := &Envelope{Type: MsgHeartbeat, FromRouter: "routerB", Timestamp: time.Now()}
	ps.mu.RLock()
	h, ok := ps.handlers[env.Type]
	ps.mu.RUnlock()
	require.True(t, ok)
	h(env.FromRouter, env)

	select {
	case from := <-received:
		require.Equal(t, "routerB", from)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}
