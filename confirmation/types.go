package confirmation

import "time"

// Status is a confirmation record's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// RecordMetadata carries the transfer details a confirmation record audits.
type RecordMetadata struct {
	FromAccount  string `json:"fromAccount"`
	ToAccount    string `json:"toAccount"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	LedgerTxHash string `json:"ledgerTxHash,omitempty"`
}

// Record is the per-router audit row written for every processed transfer.
type Record struct {
	ID                string         `json:"id"`
	TransferID        string         `json:"transferId"`
	RouterID          string         `json:"routerId"`
	Status            Status         `json:"status"`
	Timestamp         time.Time      `json:"timestamp"`
	Signature         string         `json:"signature"`
	Metadata          RecordMetadata `json:"metadata"`
	RollbackReason    string         `json:"rollbackReason,omitempty"`
	RollbackTimestamp *time.Time     `json:"rollbackTimestamp,omitempty"`
}

// DualStatus is the derived aggregate keyed by transferId.
type DualStatus string

const (
	DualPending          DualStatus = "pending"
	DualPartialConfirmed DualStatus = "partial_confirmed"
	DualConfirmed        DualStatus = "dual_confirmed"
	DualFailed           DualStatus = "failed"
)

// DualConfirmationStatus is the derived cross-router aggregate for a
// transfer: up to two per-router records, keyed by routerId.
type DualConfirmationStatus struct {
	TransferID    string             `json:"transferId"`
	Confirmations map[string]*Record `json:"confirmations"`
	Status        DualStatus         `json:"status"`
}

// deriveStatus: both present and both confirmed -> dual_confirmed; any
// failed -> failed; exactly one present -> partial_confirmed; else pending.
func deriveStatus(confirmations map[string]*Record) DualStatus {
	if len(confirmations) == 0 {
		return DualPending
	}
	for _, r := range confirmations {
		if r.Status == StatusFailed {
			return DualFailed
		}
	}
	if len(confirmations) == 1 {
		return DualPartialConfirmed
	}
	allConfirmed := true
	for _, r := range confirmations {
		if r.Status != StatusConfirmed {
			allConfirmed = false
			break
		}
	}
	if allConfirmed {
		return DualConfirmed
	}
	return DualPartialConfirmed
}
