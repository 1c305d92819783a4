package ledgermgr

import (
	"context"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
	"github.com/google/uuid"
)

// InitiateCrossLedgerTransfer validates both ledgers are connected, reserves
// on the source, and creates a pending CrossLedgerOperation.
func (m *Manager) InitiateCrossLedgerTransfer(ctx context.Context, fromLedger, toLedger, fromAccount, toAccount, assetID string, amount ledger.Amount) (*CrossLedgerOperation, error) {
	if _, err := m.requireConnected(fromLedger); err != nil {
		return nil, err
	}
	if _, err := m.requireConnected(toLedger); err != nil {
		return nil, err
	}

	op := &CrossLedgerOperation{
		ID:          uuid.NewString(),
		FromLedger:  fromLedger,
		ToLedger:    toLedger,
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		AssetID:     assetID,
		Amount:      amount,
		Status:      OpPending,
		Timestamp:   time.Now(),
	}

	m.operationsMu.Lock()
	m.operations[op.ID] = op
	m.operationsMu.Unlock()

	reservationID, err := m.ReserveBalance(ctx, fromLedger, fromAccount, assetID, amount, op.ID)
	if err != nil {
		m.operationsMu.Lock()
		op.Status = OpFailed
		m.operationsMu.Unlock()
		return op, err
	}
	_ = reservationID // recorded on op via appendOperationReservation

	return op, nil
}

func (m *Manager) appendOperationReservation(opID, reservationID string) {
	m.operationsMu.Lock()
	defer m.operationsMu.Unlock()
	if op, ok := m.operations[opID]; ok {
		op.Reservations = append(op.Reservations, reservationID)
	}
}

func (m *Manager) GetOperation(id string) (*CrossLedgerOperation, bool) {
	m.operationsMu.RLock()
	defer m.operationsMu.RUnlock()
	op, ok := m.operations[id]
	return op, ok
}

// MarkOperationLocked transitions a pending operation to locked once the
// transfer state machine has confirmed the source-side lock.
func (m *Manager) MarkOperationLocked(id string) error {
	m.operationsMu.Lock()
	defer m.operationsMu.Unlock()
	op, ok := m.operations[id]
	if !ok {
		return ledger.NewError(ledger.ErrCodeReservationNF, "operation "+id+" not found", nil)
	}
	if op.Status.Terminal() {
		return ledger.NewError(ledger.ErrCodeInvalidTransition, "operation "+id+" is already terminal", nil)
	}
	op.Status = OpLocked
	return nil
}

// CompleteOperation transitions a non-terminal operation to completed.
func (m *Manager) CompleteOperation(id string) error {
	m.operationsMu.Lock()
	defer m.operationsMu.Unlock()
	op, ok := m.operations[id]
	if !ok {
		return ledger.NewError(ledger.ErrCodeReservationNF, "operation "+id+" not found", nil)
	}
	if op.Status.Terminal() {
		return ledger.NewError(ledger.ErrCodeInvalidTransition, "operation "+id+" is already terminal", nil)
	}
	op.Status = OpCompleted
	return nil
}

// FailOperation transitions a non-terminal operation to failed without
// releasing reservations (callers that want the reservations released too
// should call RollbackCrossLedgerOperation instead).
func (m *Manager) FailOperation(id string) error {
	m.operationsMu.Lock()
	defer m.operationsMu.Unlock()
	op, ok := m.operations[id]
	if !ok {
		return ledger.NewError(ledger.ErrCodeReservationNF, "operation "+id+" not found", nil)
	}
	if op.Status.Terminal() {
		return ledger.NewError(ledger.ErrCodeInvalidTransition, "operation "+id+" is already terminal", nil)
	}
	op.Status = OpFailed
	return nil
}

// RollbackCrossLedgerOperation releases all of the operation's reservations
// (unlocking on-ledger locks where promoted) and marks it rolled_back.
// Rollback from a terminal status is rejected.
func (m *Manager) RollbackCrossLedgerOperation(ctx context.Context, id string) error {
	m.operationsMu.Lock()
	op, ok := m.operations[id]
	if !ok {
		m.operationsMu.Unlock()
		return ledger.NewError(ledger.ErrCodeReservationNF, "operation "+id+" not found", nil)
	}
	if op.Status.Terminal() {
		m.operationsMu.Unlock()
		return ledger.NewError(ledger.ErrCodeInvalidTransition, "operation "+id+" is already terminal", nil)
	}
	reservationIDs := append([]string(nil), op.Reservations...)
	m.operationsMu.Unlock()

	for _, rid := range reservationIDs {
		if err := m.ReleaseReservation(ctx, rid, true); err != nil {
			m.log.Warnw("rollback: release reservation failed", "operation", id, "reservation", rid, "error", err)
		}
	}

	m.operationsMu.Lock()
	defer m.operationsMu.Unlock()
	op.Status = OpRolledBack
	return nil
}
