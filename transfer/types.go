// Package transfer implements the atomic-swap state machine: per-transfer
// lifecycle from INITIATED through COMPLETED or ROLLBACK, driven by direct
// adapter calls and by polling transaction status, consulting each adapter's
// FinalityPolicy before treating a lock or mint as confirmed. Adapter event
// streams (Adapter.Events) are not read; a transition happens only when a
// call or a status poll returns, or on the expiry sweep's timeout.
package transfer

import (
	"time"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
)

// State is one of the per-transfer FSM states.
type State string

const (
	StateInitiated            State = "INITIATED"
	StateLeg1PrepareSent      State = "LEG1_PREPARE_SENT"
	StateLeg1PrepareConfirmed State = "LEG1_PREPARE_CONFIRMED"
	StateLeg2PrepareSent      State = "LEG2_PREPARE_SENT"
	StateLeg2PrepareConfirmed State = "LEG2_PREPARE_CONFIRMED"
	StateCommitSent           State = "COMMIT_SENT"
	StateCompleted            State = "COMPLETED"
	StateRollback             State = "ROLLBACK"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRollback
}

// Status is the coarse, user-facing transfer status, derived from the
// finer-grained FSM State below.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRouting   Status = "routing"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// CoarseStatus maps the FSM state to the user-facing status enum.
func (s State) CoarseStatus() Status {
	switch s {
	case StateInitiated:
		return StatusPending
	case StateLeg1PrepareSent, StateLeg1PrepareConfirmed:
		return StatusRouting
	case StateLeg2PrepareSent, StateLeg2PrepareConfirmed, StateCommitSent:
		return StatusExecuting
	case StateCompleted:
		return StatusCompleted
	case StateRollback:
		return StatusFailed
	default:
		return StatusPending
	}
}

// RouteAction is one RouteStep's kind.
type RouteAction string

const (
	ActionLock     RouteAction = "lock"
	ActionUnlock   RouteAction = "unlock"
	ActionMint     RouteAction = "mint"
	ActionBurn     RouteAction = "burn"
	ActionTransfer RouteAction = "transfer"
)

// StepStatus is one RouteStep's execution status.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// RouteStep is one hop of a transfer plan.
type RouteStep struct {
	RouterID  string
	LedgerID  string
	Action    RouteAction
	Status    StepStatus
	TxHash    string
	Timestamp time.Time
}

// ValidateRoute enforces the structural rule on transfer plans: a lock step
// must be succeeded by mint; a burn step must be succeeded by unlock.
// Validated before execution, not during, so a malformed plan never
// partially runs.
func ValidateRoute(steps []RouteStep) error {
	for i, step := range steps {
		switch step.Action {
		case ActionLock:
			if i+1 >= len(steps) || steps[i+1].Action != ActionMint {
				return ledger.NewError(ledger.ErrCodeInvalidTransition, "a lock step must be immediately succeeded by a mint step", nil)
			}
		case ActionBurn:
			if i+1 >= len(steps) || steps[i+1].Action != ActionUnlock {
				return ledger.NewError(ledger.ErrCodeInvalidTransition, "a burn step must be immediately succeeded by an unlock step", nil)
			}
		}
	}
	return nil
}

// Transfer is a single cross-ledger transfer or atomic swap in flight.
type Transfer struct {
	ID          string
	FromLedger  string
	ToLedger    string
	FromAccount string
	ToAccount   string
	AssetID     string
	Amount      ledger.Amount

	State State
	Route []RouteStep

	ReservationID   string
	OperationID     string
	LockTxHash      string
	DestinationHash string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time

	FailureReason string
}

// Status returns the coarse, user-facing status for this transfer.
func (t *Transfer) Status() Status { return t.State.CoarseStatus() }
