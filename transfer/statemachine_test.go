package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
	mockledger "github.com/Plumbridge/FinP2P-sub003/ledger/mock"
	"github.com/Plumbridge/FinP2P-sub003/ledgermgr"
	"github.com/stretchr/testify/require"
)

func newTestRig(t *testing.T) (*Manager, *mockledger.Adapter, *mockledger.Adapter) {
	t.Helper()
	ctx := context.Background()

	l1 := mockledger.New("L1")
	l2 := mockledger.New("L2")
	require.NoError(t, l1.Connect(ctx))
	require.NoError(t, l2.Connect(ctx))

	lm := ledgermgr.New(nil)
	lm.RegisterAdapter(l1)
	lm.RegisterAdapter(l2)

	var completed []*Transfer
	m := New(nil, lm, func(t *Transfer) { completed = append(completed, t) })
	return m, l1, l2
}

func TestTransferCompletesHappyPath(t *testing.T) {
	ctx := context.Background()
	m, l1, l2 := newTestRig(t)

	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(100)))
	require.NoError(t, l2.Mint(ctx, bridgeReserveAccount, "tok", ledger.NewAmount(100)))

	tr, err := m.InitiateTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(10))
	require.NoError(t, err)
	require.Equal(t, StateCompleted, tr.State)
	require.NotNil(t, tr.CompletedAt)

	locked, err := l1.GetLocked(ctx, "A", "tok")
	require.NoError(t, err)
	require.Equal(t, "10", locked.String())

	balB, err := l2.GetBalance(ctx, "B", "tok")
	require.NoError(t, err)
	require.Equal(t, "10", balB.String())

	require.Equal(t, "0", m.ledgerMgr.GetReservedAmount(tr.ReservationID).String())
}

func TestTransferRejectedWhenSourceBalanceInsufficient(t *testing.T) {
	ctx := context.Background()
	m, l1, _ := newTestRig(t)
	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(3)))

	_, err := m.InitiateTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(10))
	require.Error(t, err)
}

// TestTransferRollsBackOnDestinationFailure: a destination-leg failure
// transitions the transfer to ROLLBACK and reverses the source lock via the
// ledger manager's best-effort unlock path.
func TestTransferRollsBackOnDestinationFailure(t *testing.T) {
	ctx := context.Background()
	m, l1, _ := newTestRig(t)
	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(100)))
	// l2's bridge-reserve account is never funded, so the destination leg's
	// Transfer call fails for insufficient balance.

	tr, err := m.InitiateTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(10))
	require.NoError(t, err) // InitiateTransfer itself doesn't fail; the machine rolls back internally
	require.Equal(t, StateRollback, tr.State)
	require.NotEmpty(t, tr.FailureReason)

	locked, err := l1.GetLocked(ctx, "A", "tok")
	require.NoError(t, err)
	require.Equal(t, "0", locked.String())

	require.Equal(t, "0", m.ledgerMgr.GetReservedAmount(tr.ReservationID).String())
}

func TestValidateRouteRejectsLockWithoutMint(t *testing.T) {
	err := ValidateRoute([]RouteStep{{Action: ActionLock}, {Action: ActionTransfer}})
	require.Error(t, err)
}

func TestValidateRouteRejectsBurnWithoutUnlock(t *testing.T) {
	err := ValidateRoute([]RouteStep{{Action: ActionBurn}, {Action: ActionTransfer}})
	require.Error(t, err)
}

func TestValidateRouteAcceptsLockThenMint(t *testing.T) {
	err := ValidateRoute([]RouteStep{{Action: ActionLock}, {Action: ActionMint}})
	require.NoError(t, err)
}

func TestTransferReachesCompletedState(t *testing.T) {
	ctx := context.Background()
	m, l1, l2 := newTestRig(t)
	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(100)))
	require.NoError(t, l2.Mint(ctx, bridgeReserveAccount, "tok", ledger.NewAmount(100)))

	// Subscribe before the transfer exists isn't possible (id unknown), so
	// this test observes no transition events; it only asserts that the
	// returned transfer ended in COMPLETED. The bus itself is exercised
	// directly in TestBusDeliversToLateNoOneButClosesCleanly.
	tr, err := m.InitiateTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(5))
	require.NoError(t, err)
	require.Equal(t, StateCompleted, tr.State)
}

func TestExpirySweepForcesRollbackOfStaleTransfer(t *testing.T) {
	ctx := context.Background()
	m, l1, _ := newTestRig(t)
	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(100)))

	op, err := m.ledgerMgr.InitiateCrossLedgerTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(10))
	require.NoError(t, err)

	stale := &Transfer{
		ID:          "stale-1",
		FromLedger:  "L1",
		ToLedger:    "L2",
		FromAccount: "A",
		ToAccount:   "B",
		AssetID:     "tok",
		Amount:      ledger.NewAmount(10),
		State:       StateLeg1PrepareSent,
		OperationID: op.ID,
		CreatedAt:   time.Now().Add(-2 * time.Hour),
		UpdatedAt:   time.Now().Add(-2 * time.Hour),
	}
	if len(op.Reservations) > 0 {
		stale.ReservationID = op.Reservations[0]
	}
	m.mu.Lock()
	m.transfers[stale.ID] = stale
	m.mu.Unlock()

	sweeper := NewExpirySweeper(m, time.Hour, time.Hour)
	n := sweeper.sweep(ctx)
	require.Equal(t, 1, n)

	got, ok := m.GetTransfer("stale-1")
	require.True(t, ok)
	require.Equal(t, StateRollback, got.State)
}

func TestExpirySweepEvictsTerminalTransfers(t *testing.T) {
	ctx := context.Background()
	m, l1, l2 := newTestRig(t)
	require.NoError(t, l1.Mint(ctx, "A", "tok", ledger.NewAmount(100)))
	require.NoError(t, l2.Mint(ctx, bridgeReserveAccount, "tok", ledger.NewAmount(100)))

	tr, err := m.InitiateTransfer(ctx, "L1", "L2", "A", "B", "tok", ledger.NewAmount(10))
	require.NoError(t, err)
	require.Equal(t, StateCompleted, tr.State)

	sweeper := NewExpirySweeper(m, time.Hour, time.Hour)
	sweeper.sweep(ctx)

	_, ok := m.GetTransfer(tr.ID)
	require.False(t, ok, "terminal transfers leave the table after one sweep")
}

func TestBusDeliversToLateNoOneButClosesCleanly(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe("T1")
	b.Publish(TransitionEvent{TransferID: "T1", From: StateInitiated, To: StateLeg1PrepareSent})
	ev := <-ch
	require.Equal(t, StateLeg1PrepareSent, ev.To)
	b.Close("T1")
	_, open := <-ch
	require.False(t, open)
}
