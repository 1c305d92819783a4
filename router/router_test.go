package router

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"testing"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/confirmation"
	"github.com/Plumbridge/FinP2P-sub003/config"
	"github.com/Plumbridge/FinP2P-sub003/kv"
	"github.com/Plumbridge/FinP2P-sub003/ledger"
	mockledger "github.com/Plumbridge/FinP2P-sub003/ledger/mock"
	"github.com/Plumbridge/FinP2P-sub003/peering"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	c := config.Defaults()
	c.RouterID = "router-a"
	c.Redis.URL = "memory"
	c.Security.EncryptionKey = "01234567890123456789012345678901"
	c.Ledgers = map[string]config.LedgerConfig{
		"L1": {Type: "mock"},
		"L2": {Type: "mock"},
	}
	c.Network.Peers = []string{"finp2p://router-b@peer-b.example.com:9000"}
	return c
}

func newTestRouter(t *testing.T) (*Router, kv.Store, *mockledger.Adapter, *mockledger.Adapter) {
	t.Helper()
	ctx := context.Background()

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	store := kv.NewMemoryStore()
	peers := peering.NewDummy("router-a", priv)

	r, err := New(nil, testConfig(), store, peers, nil, priv)
	require.NoError(t, err)

	l1 := mockledger.New("L1")
	l2 := mockledger.New("L2")
	require.NoError(t, l1.Connect(ctx))
	require.NoError(t, l2.Connect(ctx))
	r.RegisterLedgerAdapter(l1)
	r.RegisterLedgerAdapter(l2)
	return r, store, l1, l2
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RouterID = ""
	_, err := New(nil, cfg, kv.NewMemoryStore(), nil, nil, nil)
	require.Error(t, err)
}

func TestRegisterAssetMirrorsIntoStore(t *testing.T) {
	ctx := context.Background()
	r, store, _, _ := newTestRouter(t)

	reg, err := r.RegisterAsset(ctx, "AST1", []string{"router-b"}, nil)
	require.NoError(t, err)
	require.Equal(t, "router-a", reg.PrimaryRouterID)

	blob, ok, err := store.HGet(ctx, keyAssetRegistry, "AST1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, blob, "router-a")

	members, err := store.SMembers(ctx, "finp2p:router_assets:router-a")
	require.NoError(t, err)
	require.Contains(t, members, "AST1")

	_, err = r.RegisterAsset(ctx, "AST1", nil, nil)
	require.Error(t, err)
}

// TestSubmitTransferEndToEnd drives a cross-ledger transfer through the full
// stack: authority check, reservation, source lock, destination credit,
// commit, and the asynchronous confirmation record write.
func TestSubmitTransferEndToEnd(t *testing.T) {
	ctx := context.Background()
	r, store, l1, l2 := newTestRouter(t)

	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(100)))
	require.NoError(t, l2.Mint(ctx, "bridge-reserve", "tok", ledger.NewAmount(100)))

	_, err := r.RegisterAsset(ctx, "tok", nil, nil)
	require.NoError(t, err)

	tr, err := r.SubmitTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(40))
	require.NoError(t, err)
	require.Equal(t, "completed", string(tr.Status()))

	balB, err := l2.GetBalance(ctx, "B", "tok")
	require.NoError(t, err)
	require.Equal(t, "40", balB.String())

	// the confirmation task runs on the processor's worker pool
	require.Eventually(t, func() bool {
		dual, err := r.ConfirmStore.GetDualStatus(ctx, tr.ID)
		return err == nil && dual.Status == confirmation.DualPartialConfirmed
	}, 5*time.Second, 10*time.Millisecond)

	all, err := store.HGetAll(ctx, "finp2p:confirmations:router-a")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

// TestSubmitTransferDeniedForUnregisteredAsset: an asset nobody has
// registered authority over must be refused, not waved through.
func TestSubmitTransferDeniedForUnregisteredAsset(t *testing.T) {
	ctx := context.Background()
	r, _, l1, _ := newTestRouter(t)
	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(100)))

	_, err := r.SubmitTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(10))
	require.Error(t, err)
	require.Equal(t, ledger.ErrCodeAuthorityDenied, ledger.CodeOf(err))
	require.Contains(t, err.Error(), "not registered")
}

func TestSubmitTransferDeniedWithoutAuthority(t *testing.T) {
	ctx := context.Background()
	r, _, l1, _ := newTestRouter(t)
	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(100)))

	// register the asset with a different primary so this router holds no
	// authority over it
	_, err := r.Authority.RegisterAsset("tok", "router-z", nil, nil)
	require.NoError(t, err)

	_, err = r.SubmitTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(10))
	require.Error(t, err)
	require.Equal(t, ledger.ErrCodeAuthorityDenied, ledger.CodeOf(err))
}

func TestHandleHeartbeatFeedsAuthorityAndStore(t *testing.T) {
	ctx := context.Background()
	r, store, _, _ := newTestRouter(t)

	env := &peering.Envelope{Type: peering.MsgHeartbeat, FromRouter: "router-b", Timestamp: time.Now()}
	r.handleHeartbeat("router-b", env)

	require.True(t, r.Authority.IsAvailable("router-b"))

	_, ok, err := store.Get(ctx, "finp2p:router_heartbeat:router-b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHandleTransferResponseIngestsPeerRecord(t *testing.T) {
	ctx := context.Background()
	r, _, _, _ := newTestRouter(t)

	payload, err := json.Marshal(map[string]any{
		"transferId": "T-peer", "status": "confirmed",
	})
	require.NoError(t, err)
	env := &peering.Envelope{Type: peering.MsgTransferResp, FromRouter: "router-b", Payload: payload, Timestamp: time.Now()}
	r.handleTransferResponse("router-b", env)

	dual, err := r.ConfirmStore.GetDualStatus(ctx, "T-peer")
	require.NoError(t, err)
	require.Equal(t, confirmation.DualPartialConfirmed, dual.Status)
}

func TestPersistRoutingTable(t *testing.T) {
	ctx := context.Background()
	r, store, _, _ := newTestRouter(t)

	require.NoError(t, r.peers.AddPeer("router-b", nil, "routerb.local:9000", nil, []string{"mock"}))
	r.persistRoutingTable(ctx)

	blob, ok, err := store.Get(ctx, "finp2p:routing:table")
	require.NoError(t, err)
	require.True(t, ok)

	var entries []routingTableEntry
	require.NoError(t, json.Unmarshal([]byte(blob), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "router-b", entries[0].RouterID)
}

func TestStartStopIdempotent(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	r.Start(context.Background())
	r.Start(context.Background()) // second Start is a no-op
	r.Stop()
	r.Stop() // second Stop is a no-op
}
