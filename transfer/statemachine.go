package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
	"github.com/Plumbridge/FinP2P-sub003/ledgermgr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// bridgeReserveAccount is the custody/reserve account the destination leg
// mints (credits) the transferred amount from, modeling a lock-and-mint
// bridge: the source leg locks the original asset, the destination leg
// releases an equivalent amount from a pre-funded reserve. Real ledger
// integrations would replace this with a native mint call; the mock
// adapter's interface only exposes Transfer/LockAsset/UnlockAsset, so the
// reserve-account pattern is the interface-compatible stand-in.
const bridgeReserveAccount = "bridge-reserve"

// Manager drives the per-transfer FSM, built on top of ledgermgr.Manager's
// reservation and cross-ledger-operation primitives.
type Manager struct {
	log       *zap.SugaredLogger
	ledgerMgr *ledgermgr.Manager
	bus       *Bus

	mu        sync.RWMutex
	transfers map[string]*Transfer

	// onCompleted is invoked (not under mu) once a transfer reaches
	// COMPLETED, so the router can enqueue the confirmation task without
	// this package importing confirmworker.
	onCompleted func(*Transfer)
}

// New builds a transfer Manager.
func New(log *zap.SugaredLogger, ledgerMgr *ledgermgr.Manager, onCompleted func(*Transfer)) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		log:         log,
		ledgerMgr:   ledgerMgr,
		bus:         NewBus(),
		transfers:   make(map[string]*Transfer),
		onCompleted: onCompleted,
	}
}

// Subscribe returns a channel of TransitionEvent for transferID.
func (m *Manager) Subscribe(transferID string) <-chan TransitionEvent {
	return m.bus.Subscribe(transferID)
}

func (m *Manager) GetTransfer(id string) (*Transfer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[id]
	return t, ok
}

func (m *Manager) transition(t *Transfer, to State, err error) {
	from := t.State
	t.State = to
	t.UpdatedAt = time.Now()
	m.bus.Publish(TransitionEvent{TransferID: t.ID, From: from, To: to, At: t.UpdatedAt, Err: err})
}

// InitiateTransfer drives a transfer through the full FSM to COMPLETED or
// ROLLBACK and returns the final Transfer. Each call executes its own
// transfer's transitions in strict sequence; distinct transfers started
// concurrently from different goroutines progress independently.
func (m *Manager) InitiateTransfer(ctx context.Context, fromLedger, toLedger, fromAccount, toAccount, assetID string, amount ledger.Amount) (*Transfer, error) {
	route := []RouteStep{
		{RouterID: "", LedgerID: fromLedger, Action: ActionLock, Status: StepPending},
		{RouterID: "", LedgerID: toLedger, Action: ActionMint, Status: StepPending},
	}
	if err := ValidateRoute(route); err != nil {
		return nil, err
	}

	op, err := m.ledgerMgr.InitiateCrossLedgerTransfer(ctx, fromLedger, toLedger, fromAccount, toAccount, assetID, amount)
	if err != nil {
		return nil, err
	}

	t := &Transfer{
		ID:          uuid.NewString(),
		FromLedger:  fromLedger,
		ToLedger:    toLedger,
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		AssetID:     assetID,
		Amount:      amount,
		State:       StateInitiated,
		Route:       route,
		OperationID: op.ID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if len(op.Reservations) > 0 {
		t.ReservationID = op.Reservations[0]
	}

	m.mu.Lock()
	m.transfers[t.ID] = t
	m.mu.Unlock()

	m.run(ctx, t)
	return t, nil
}

// run advances t through every remaining state until it terminates.
func (m *Manager) run(ctx context.Context, t *Transfer) {
	if err := m.leg1Prepare(ctx, t); err != nil {
		m.rollback(ctx, t, err)
		return
	}
	if err := m.leg1Confirm(ctx, t); err != nil {
		m.rollback(ctx, t, err)
		return
	}
	if err := m.leg2Prepare(ctx, t); err != nil {
		m.rollback(ctx, t, err)
		return
	}
	if err := m.leg2Confirm(ctx, t); err != nil {
		m.rollback(ctx, t, err)
		return
	}
	m.commit(ctx, t)
}

func (m *Manager) leg1Prepare(ctx context.Context, t *Transfer) error {
	m.transition(t, StateLeg1PrepareSent, nil)
	txHash, err := m.ledgerMgr.LockReservedBalance(ctx, t.ReservationID)
	if err != nil {
		return err
	}
	t.LockTxHash = txHash
	t.Route[0].TxHash = txHash
	t.Route[0].Status = StepExecuting
	return nil
}

func (m *Manager) leg1Confirm(ctx context.Context, t *Transfer) error {
	a, err := m.ledgerMgr.Adapter(t.FromLedger)
	if err != nil {
		return err
	}
	if err := consultFinality(ctx, a, t.LockTxHash); err != nil {
		return err
	}
	t.Route[0].Status = StepCompleted
	if err := m.ledgerMgr.MarkOperationLocked(t.OperationID); err != nil {
		return err
	}
	m.transition(t, StateLeg1PrepareConfirmed, nil)
	return nil
}

func (m *Manager) leg2Prepare(ctx context.Context, t *Transfer) error {
	m.transition(t, StateLeg2PrepareSent, nil)
	a, err := m.ledgerMgr.Adapter(t.ToLedger)
	if err != nil {
		return err
	}
	txHash, err := a.Transfer(ctx, bridgeReserveAccount, t.ToAccount, t.AssetID, t.Amount)
	if err != nil {
		return ledger.Wrap(ledger.ErrCodeAdapter, "destination leg transfer failed", err)
	}
	t.DestinationHash = txHash
	t.Route[1].TxHash = txHash
	t.Route[1].Status = StepExecuting
	return nil
}

func (m *Manager) leg2Confirm(ctx context.Context, t *Transfer) error {
	a, err := m.ledgerMgr.Adapter(t.ToLedger)
	if err != nil {
		return err
	}
	if err := consultFinality(ctx, a, t.DestinationHash); err != nil {
		return err
	}
	t.Route[1].Status = StepCompleted
	m.transition(t, StateLeg2PrepareConfirmed, nil)
	return nil
}

func (m *Manager) commit(ctx context.Context, t *Transfer) {
	m.transition(t, StateCommitSent, nil)
	if err := m.ledgerMgr.CompleteOperation(t.OperationID); err != nil {
		m.log.Warnw("complete operation failed after destination leg succeeded", "transfer", t.ID, "error", err)
	}
	_ = m.ledgerMgr.ReleaseReservation(ctx, t.ReservationID, false)

	now := time.Now()
	t.CompletedAt = &now
	m.transition(t, StateCompleted, nil)

	if m.onCompleted != nil {
		m.onCompleted(t)
	}
}

// rollback transitions t to ROLLBACK, releasing/unlocking its reservation
// through the ledger manager's best-effort unlock path.
func (m *Manager) rollback(ctx context.Context, t *Transfer, cause error) {
	t.FailureReason = cause.Error()
	if err := m.ledgerMgr.RollbackCrossLedgerOperation(ctx, t.OperationID); err != nil {
		m.log.Warnw("rollback of cross-ledger operation failed", "transfer", t.ID, "error", err)
	}
	m.transition(t, StateRollback, cause)
}

// ForceRollback allows an external caller (e.g. the expiry sweeper) to
// rollback a still-open transfer. Rollback is rejected if the transfer has
// already reached a terminal state.
func (m *Manager) ForceRollback(ctx context.Context, transferID, reason string) error {
	m.mu.RLock()
	t, ok := m.transfers[transferID]
	m.mu.RUnlock()
	if !ok {
		return ledger.NewError(ledger.ErrCodeReservationNF, "transfer "+transferID+" not found", nil)
	}
	if t.State.Terminal() {
		return ledger.NewError(ledger.ErrCodeInvalidTransition, "transfer "+transferID+" is already terminal", nil)
	}
	m.rollback(ctx, t, errExpired(reason))
	return nil
}

type errExpired string

func (e errExpired) Error() string { return string(e) }

// consultFinality checks the adapter's own FinalityPolicy before treating
// an on-ledger tx as confirmed. MinElapsed is honored by sleeping;
// MinConfirmations/MinBlockDepth are honored by polling
// GetTransactionStatus until it reports TxConfirmed (adapters that model
// block depth are expected to only report TxConfirmed once their own
// threshold is satisfied -- this function does not re-derive block depth
// itself, since that is ledger-specific).
func consultFinality(ctx context.Context, a ledger.Adapter, txHash string) error {
	policy := a.FinalityPolicy()
	if policy.MinElapsed > 0 {
		select {
		case <-time.After(time.Duration(policy.MinElapsed) * time.Millisecond):
		case <-ctx.Done():
			return ledger.Wrap(ledger.ErrCodeTimeout, "consultFinality: context cancelled waiting out MinElapsed", ctx.Err())
		}
	}

	const pollInterval = 10 * time.Millisecond
	for {
		status, err := a.GetTransactionStatus(ctx, txHash)
		if err != nil {
			return ledger.Wrap(ledger.ErrCodeAdapter, "getTransactionStatus failed", err)
		}
		switch status {
		case ledger.TxConfirmed:
			return nil
		case ledger.TxFailed:
			return ledger.NewError(ledger.ErrCodeAdapter, "transaction "+txHash+" failed on ledger", nil)
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ledger.Wrap(ledger.ErrCodeTimeout, "consultFinality: context cancelled awaiting confirmation", ctx.Err())
		}
	}
}
