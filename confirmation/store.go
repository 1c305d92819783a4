// Package confirmation implements the confirmation record store: per-router
// audit rows, three secondary indices, and the dual-confirmation aggregate
// derived across (up to) two routers.
package confirmation

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/kv"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	keyConfirmations     = "finp2p:confirmations:%s"      // %s = routerId, hash
	keyUserTransactions  = "finp2p:user_transactions:%s"  // %s = accountId, set
	keyAssetTransactions = "finp2p:asset_transactions:%s" // %s = assetId, set
	keyDualConfirmations = "finp2p:dual_confirmations:%s" // %s = transferId, string
	keyTransferComplete  = "finp2p:transfer_completion:%s"
)

// Store is the Confirmation Record Store, backed by a shared kv.Store.
type Store struct {
	log      *zap.SugaredLogger
	kv       kv.Store
	routerID string
	signKey  ed25519.PrivateKey

	// dualMu serializes the read-modify-write recompute of a transfer's dual
	// status so two concurrent createConfirmationRecord calls for the same
	// transfer (same router, different tasks, or a local race with a
	// peer-record write routed through IngestPeerRecord) don't clobber each
	// other's update.
	dualMu sync.Mutex
}

// New builds a Store. signKey may be nil, in which case records are written
// unsigned (VerifyRecord will report them unverifiable, never forged).
func New(log *zap.SugaredLogger, store kv.Store, routerID string, signKey ed25519.PrivateKey) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{log: log, kv: store, routerID: routerID, signKey: signKey}
}

// CreateConfirmationRecord issues a fresh record id, writes the record under
// this store's routerID, updates the three indices, signs it, and
// recomputes the transfer's dual status.
func (s *Store) CreateConfirmationRecord(ctx context.Context, transferID, fromAccount, toAccount, asset, amount string, status Status, ledgerTxHash string) (*Record, error) {
	r := &Record{
		ID:         uuid.NewString(),
		TransferID: transferID,
		RouterID:   s.routerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata: RecordMetadata{
			FromAccount:  fromAccount,
			ToAccount:    toAccount,
			Asset:        asset,
			Amount:       amount,
			LedgerTxHash: ledgerTxHash,
		},
	}
	sign(r, s.signKey)

	if err := s.writeRecord(ctx, r); err != nil {
		return nil, err
	}
	if err := s.recomputeDualStatus(ctx, transferID, s.routerID); err != nil {
		s.log.Warnw("dual status recompute failed", "transfer", transferID, "error", err)
	}
	return r, nil
}

// IngestPeerRecord absorbs a confirmation record that arrived from another
// router over the federation channel (TRANSFER_RESPONSE messages carry
// these), storing it under the index keyed by the peer's own routerId.
func (s *Store) IngestPeerRecord(ctx context.Context, r *Record) error {
	if err := s.writeRecordUnder(ctx, r.RouterID, r); err != nil {
		return err
	}
	if err := s.recomputeDualStatus(ctx, r.TransferID, r.RouterID); err != nil {
		s.log.Warnw("dual status recompute failed", "transfer", r.TransferID, "error", err)
	}
	return nil
}

func (s *Store) writeRecord(ctx context.Context, r *Record) error {
	return s.writeRecordUnder(ctx, s.routerID, r)
}

func (s *Store) writeRecordUnder(ctx context.Context, routerID string, r *Record) error {
	blob, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal confirmation record: %w", err)
	}
	if err := s.kv.HSet(ctx, fmt.Sprintf(keyConfirmations, routerID), r.ID, string(blob)); err != nil {
		return fmt.Errorf("write confirmation record: %w", err)
	}
	if err := s.kv.SAdd(ctx, fmt.Sprintf(keyUserTransactions, r.Metadata.FromAccount), r.ID); err != nil {
		return fmt.Errorf("index user_transactions: %w", err)
	}
	if err := s.kv.SAdd(ctx, fmt.Sprintf(keyAssetTransactions, r.Metadata.Asset), r.ID); err != nil {
		return fmt.Errorf("index asset_transactions: %w", err)
	}
	return nil
}

// recomputeDualStatus loads the current dual status for transferID, merges
// in routerID's latest record, re-derives status, and writes it back. It is
// recomputed on every single-router write and eventually consistent across
// routers; cross-router reads may race.
func (s *Store) recomputeDualStatus(ctx context.Context, transferID, routerID string) error {
	s.dualMu.Lock()
	defer s.dualMu.Unlock()

	dual, err := s.loadDualStatus(ctx, transferID)
	if err != nil {
		return err
	}

	latest, ok, err := s.latestRecordFor(ctx, routerID, transferID)
	if err != nil {
		return err
	}
	if ok {
		if dual.Confirmations == nil {
			dual.Confirmations = make(map[string]*Record)
		}
		dual.Confirmations[latest.RouterID] = latest
	}
	dual.Status = deriveStatus(dual.Confirmations)

	blob, err := json.Marshal(dual)
	if err != nil {
		return fmt.Errorf("marshal dual status: %w", err)
	}
	if err := s.kv.Set(ctx, fmt.Sprintf(keyDualConfirmations, transferID), string(blob)); err != nil {
		return fmt.Errorf("write dual status: %w", err)
	}

	if dual.Status == DualConfirmed {
		if err := s.kv.Set(ctx, fmt.Sprintf(keyTransferComplete, transferID), time.Now().UTC().Format(time.RFC3339)); err != nil {
			s.log.Warnw("failed to set transfer_completion marker", "transfer", transferID, "error", err)
		}
	}
	return nil
}

func (s *Store) loadDualStatus(ctx context.Context, transferID string) (*DualConfirmationStatus, error) {
	raw, ok, err := s.kv.Get(ctx, fmt.Sprintf(keyDualConfirmations, transferID))
	if err != nil {
		return nil, fmt.Errorf("load dual status: %w", err)
	}
	dual := &DualConfirmationStatus{TransferID: transferID, Confirmations: make(map[string]*Record), Status: DualPending}
	if !ok {
		return dual, nil
	}
	if err := json.Unmarshal([]byte(raw), dual); err != nil {
		return nil, fmt.Errorf("unmarshal dual status: %w", err)
	}
	if dual.Confirmations == nil {
		dual.Confirmations = make(map[string]*Record)
	}
	return dual, nil
}

// GetDualStatus returns the current derived aggregate for transferID.
func (s *Store) GetDualStatus(ctx context.Context, transferID string) (*DualConfirmationStatus, error) {
	return s.loadDualStatus(ctx, transferID)
}

// latestRecordFor scans routerID's confirmation hash for the newest record
// tagged with transferID. The confirmations hash is keyed by confirmationId,
// not transferId, so this is a linear scan; volumes stay at one record per
// router per transfer, so no transferId index is kept.
func (s *Store) latestRecordFor(ctx context.Context, routerID, transferID string) (*Record, bool, error) {
	all, err := s.kv.HGetAll(ctx, fmt.Sprintf(keyConfirmations, routerID))
	if err != nil {
		return nil, false, fmt.Errorf("scan confirmations: %w", err)
	}
	var latest *Record
	for _, blob := range all {
		var r Record
		if err := json.Unmarshal([]byte(blob), &r); err != nil {
			continue
		}
		if r.TransferID != transferID {
			continue
		}
		if latest == nil || r.Timestamp.After(latest.Timestamp) {
			rr := r
			latest = &rr
		}
	}
	return latest, latest != nil, nil
}

// RollbackConfirmation marks a previously-written record rolled_back and
// re-signs it, recording reason and timestamp.
func (s *Store) RollbackConfirmation(ctx context.Context, confirmationID, reason string) error {
	all, err := s.kv.HGetAll(ctx, fmt.Sprintf(keyConfirmations, s.routerID))
	if err != nil {
		return fmt.Errorf("scan confirmations: %w", err)
	}
	blob, ok := all[confirmationID]
	if !ok {
		return fmt.Errorf("confirmation %s not found for router %s", confirmationID, s.routerID)
	}
	var r Record
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return fmt.Errorf("unmarshal confirmation record: %w", err)
	}

	now := time.Now()
	r.Status = StatusRolledBack
	r.RollbackReason = reason
	r.RollbackTimestamp = &now
	sign(&r, s.signKey)

	if err := s.writeRecord(ctx, &r); err != nil {
		return err
	}
	return s.recomputeDualStatus(ctx, r.TransferID, s.routerID)
}

// CleanupOldRecords deletes this router's confirmations whose timestamp is
// older than now-olderThan. Indices are pruned lazily: a dangling id in a
// user or asset set is skipped by readers.
func (s *Store) CleanupOldRecords(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	all, err := s.kv.HGetAll(ctx, fmt.Sprintf(keyConfirmations, s.routerID))
	if err != nil {
		return 0, fmt.Errorf("scan confirmations: %w", err)
	}
	deleted := 0
	for id, blob := range all {
		var r Record
		if err := json.Unmarshal([]byte(blob), &r); err != nil {
			continue
		}
		if r.Timestamp.Before(cutoff) {
			if err := s.kv.HDel(ctx, fmt.Sprintf(keyConfirmations, s.routerID), id); err != nil {
				s.log.Warnw("cleanup: failed to delete confirmation", "id", id, "error", err)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}
