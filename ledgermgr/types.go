// Package ledgermgr implements the ledger manager: the adapter registry,
// balance reservations with a per-key FIFO queue, cross-ledger operation
// lifecycle, and the periodic reservation-expiry sweep. One goroutine owns
// mutation of a given logical key; readers take a narrow lock only for the
// duration of the read.
package ledgermgr

import (
	"time"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
)

// BalanceReservation is a soft claim on a ledger balance, optionally
// promoted to an on-ledger lock.
type BalanceReservation struct {
	ID         string
	LedgerID   string
	AccountID  string
	AssetID    string
	Amount     ledger.Amount
	CreatedAt  time.Time
	LockTxHash string // empty until promoted by LockReservedBalance
}

func (r BalanceReservation) Locked() bool { return r.LockTxHash != "" }

// OperationStatus is the lifecycle state of a CrossLedgerOperation.
type OperationStatus string

const (
	OpPending    OperationStatus = "pending"
	OpLocked     OperationStatus = "locked"
	OpCompleted  OperationStatus = "completed"
	OpFailed     OperationStatus = "failed"
	OpRolledBack OperationStatus = "rolled_back"
)

func (s OperationStatus) Terminal() bool {
	return s == OpCompleted || s == OpFailed || s == OpRolledBack
}

// CrossLedgerOperation binds N reservations into an atomic unit spanning two
// ledgers.
type CrossLedgerOperation struct {
	ID           string
	FromLedger   string
	ToLedger     string
	FromAccount  string
	ToAccount    string
	AssetID      string
	Amount       ledger.Amount
	Reservations []string // BalanceReservation IDs
	Status       OperationStatus
	Timestamp    time.Time
}
