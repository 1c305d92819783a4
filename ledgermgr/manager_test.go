package ledgermgr

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
	mockledger "github.com/Plumbridge/FinP2P-sub003/ledger/mock"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *mockledger.Adapter) {
	t.Helper()
	a := mockledger.New("mock")
	require.NoError(t, a.Connect(context.Background()))
	m := New(nil)
	m.RegisterAdapter(a)
	return m, a
}

// TestReservationExceedsAvailable: with 10 minted, an 8-token reservation
// succeeds, a further 5 fails as insufficient, and releasing the first makes
// room for the 5.
func TestReservationExceedsAvailable(t *testing.T) {
	ctx := context.Background()
	m, a := newTestManager(t)
	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(10)))

	id1, err := m.ReserveBalance(ctx, "mock", "A", "tok", ledger.NewAmount(8))
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	_, err = m.ReserveBalance(ctx, "mock", "A", "tok", ledger.NewAmount(5))
	require.Error(t, err)
	require.True(t, strings.Contains(strings.ToLower(err.Error()), "insufficient"))

	require.NoError(t, m.ReleaseReservation(ctx, id1, false))

	id3, err := m.ReserveBalance(ctx, "mock", "A", "tok", ledger.NewAmount(5))
	require.NoError(t, err)
	require.NotEmpty(t, id3)
}

// TestCrossLedgerRollback: a pending operation rolls back cleanly and its
// reservations are released.
func TestCrossLedgerRollback(t *testing.T) {
	ctx := context.Background()
	m, a := newTestManager(t)
	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(100)))

	op, err := m.InitiateCrossLedgerTransfer(ctx, "mock", "mock", "A", "B", "tok", ledger.NewAmount(15))
	require.NoError(t, err)
	require.Equal(t, OpPending, op.Status)

	require.NoError(t, m.RollbackCrossLedgerOperation(ctx, op.ID))

	got, ok := m.GetOperation(op.ID)
	require.True(t, ok)
	require.Equal(t, OpRolledBack, got.Status)

	for _, rid := range op.Reservations {
		require.Equal(t, "0", m.GetReservedAmount(rid).String())
	}
}

func TestRollbackRejectedForTerminalStatus(t *testing.T) {
	ctx := context.Background()
	m, a := newTestManager(t)
	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(100)))

	op, err := m.InitiateCrossLedgerTransfer(ctx, "mock", "mock", "A", "B", "tok", ledger.NewAmount(15))
	require.NoError(t, err)
	require.NoError(t, m.CompleteOperation(op.ID))

	err = m.RollbackCrossLedgerOperation(ctx, op.ID)
	require.Error(t, err)
	require.Equal(t, ledger.ErrCodeInvalidTransition, ledger.CodeOf(err))
}

func TestLockReservedBalanceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, a := newTestManager(t)
	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(50)))

	id, err := m.ReserveBalance(ctx, "mock", "A", "tok", ledger.NewAmount(10))
	require.NoError(t, err)

	hash1, err := m.LockReservedBalance(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, hash1)

	hash2, err := m.LockReservedBalance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, hash1, hash2)
}

func TestZeroAmountRejectedBeforeIO(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	_, err := m.ReserveBalance(ctx, "mock", "A", "tok", ledger.NewAmount(0))
	require.Error(t, err)
}

// TestReservationQueueServesInsertionOrder submits requests against the same
// (ledger,account,asset) key one after another, each only once the previous
// call has returned, and checks that each request sees the balance left by
// the ones before it: 3 of 5 succeeds, the next 3 finds 2 left and fails,
// 1 succeeds, and 5 finds 1 left and fails.
func TestReservationQueueServesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m, a := newTestManager(t)
	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(5)))

	amounts := []int64{3, 3, 1, 5}
	wantOK := []bool{true, false, true, false}

	results := make([]chan bool, len(amounts))

	var wg sync.WaitGroup
	prev := make(chan struct{})
	close(prev) // index 0 may submit immediately
	for i, amt := range amounts {
		results[i] = make(chan bool, 1)
		wg.Add(1)
		next := make(chan struct{})
		go func(i int, amt int64, wait, done chan struct{}) {
			defer wg.Done()
			<-wait
			_, err := m.ReserveBalance(ctx, "mock", "A", "tok", ledger.NewAmount(amt))
			close(done)
			results[i] <- err == nil
		}(i, amt, prev, next)
		prev = next
	}
	wg.Wait()

	for i, want := range wantOK {
		require.Equal(t, want, <-results[i], "request %d (amount %d)", i, amounts[i])
	}
}

// TestReservationQueueNoLostUpdatesUnderConcurrency stress-tests the same
// key from many goroutines without a barrier and checks the manager's view
// of availability reflects exactly the reservations that succeeded -- no
// lost updates, no double-spends.
func TestReservationQueueNoLostUpdatesUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	m, a := newTestManager(t)
	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(1_000_000)))

	const n = 50
	var wg sync.WaitGroup
	starts := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-starts
			_, err := m.ReserveBalance(ctx, "mock", "A", "tok", ledger.NewAmount(1))
			require.NoError(t, err)
		}()
	}
	close(starts)
	wg.Wait()

	remaining := int64(1_000_000 - n)
	ok, err := m.ValidateBalanceAvailability(ctx, "mock", "A", "tok", ledger.NewAmount(remaining))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.ValidateBalanceAvailability(ctx, "mock", "A", "tok", ledger.NewAmount(remaining+1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExpirySweepReleasesStaleReservations(t *testing.T) {
	ctx := context.Background()
	m, a := newTestManager(t)
	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(100)))

	id, err := m.ReserveBalance(ctx, "mock", "A", "tok", ledger.NewAmount(10))
	require.NoError(t, err)

	sweeper := NewExpirySweeper(m, 10*time.Millisecond, time.Hour, nil)
	time.Sleep(20 * time.Millisecond)
	n := sweeper.sweep(ctx)
	require.Equal(t, 1, n)
	require.Equal(t, "0", m.GetReservedAmount(id).String())
}
