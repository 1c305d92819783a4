package mock

import (
	"context"
	"testing"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
	"github.com/stretchr/testify/require"
)

// TestSameLedgerTransfer: mint 100 to A, transfer 40 from A to B, expect
// A=60, B=40 and a non-empty tx hash.
func TestSameLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	a := New("mock")
	require.NoError(t, a.Connect(ctx))

	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(100)))

	txHash, err := a.Transfer(ctx, "A", "B", "tok", ledger.NewAmount(40))
	require.NoError(t, err)
	require.NotEmpty(t, txHash)

	balA, err := a.GetBalance(ctx, "A", "tok")
	require.NoError(t, err)
	require.Equal(t, "60", balA.String())

	balB, err := a.GetBalance(ctx, "B", "tok")
	require.NoError(t, err)
	require.Equal(t, "40", balB.String())
}

func TestLockAndUnlockAdjustsAvailable(t *testing.T) {
	ctx := context.Background()
	a := New("mock")
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, a.Mint(ctx, "A", "tok", ledger.NewAmount(10)))

	_, err := a.LockAsset(ctx, "A", "tok", ledger.NewAmount(8))
	require.NoError(t, err)

	avail, err := a.GetAvailable(ctx, "A", "tok")
	require.NoError(t, err)
	require.Equal(t, "2", avail.String())

	_, err = a.UnlockAsset(ctx, "A", "tok", ledger.NewAmount(8))
	require.NoError(t, err)

	avail, err = a.GetAvailable(ctx, "A", "tok")
	require.NoError(t, err)
	require.Equal(t, "10", avail.String())
}

func TestOperationsFailWhenNotConnected(t *testing.T) {
	ctx := context.Background()
	a := New("mock")
	_, err := a.GetBalance(ctx, "A", "tok")
	require.Error(t, err)
	require.Equal(t, ledger.ErrCodeNotConnected, ledger.CodeOf(err))
}
