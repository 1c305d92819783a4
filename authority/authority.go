// Package authority implements the primary router authority: it decides,
// for a given asset, which router is currently entitled to act as primary
// and answers validateAuthority challenges from the rest of the router.
package authority

import (
	"sync"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
	"go.uber.org/zap"
)

// AssetRegistration records which router is primary for an asset and which
// routers stand ready to take over if the primary goes quiet.
type AssetRegistration struct {
	AssetID         string
	PrimaryRouterID string
	BackupRouterIDs []string
	Metadata        map[string]string
	RegisteredAt    time.Time
}

func (r *AssetRegistration) isBackup(routerID string) bool {
	for _, b := range r.BackupRouterIDs {
		if b == routerID {
			return true
		}
	}
	return false
}

// Decision is the outcome of validateAuthority: whether requestingRouterID
// may currently act as authority for the asset, and why.
type Decision struct {
	Authorized bool
	Reason     string
	Primary    string
	Backups    []string
}

// Authority tracks asset registrations and router liveness and answers
// authority challenges. It owns no network transport: router.Router is
// responsible for broadcasting/receiving the heartbeats that feed Touch.
type Authority struct {
	log *zap.SugaredLogger

	mu     sync.RWMutex
	assets map[string]*AssetRegistration

	hb *heartbeatTracker
}

// New builds an Authority. livenessWindow is how long a router is
// considered available after its last heartbeat; zero defaults to 30s.
func New(log *zap.SugaredLogger, livenessWindow time.Duration) *Authority {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if livenessWindow <= 0 {
		livenessWindow = 30 * time.Second
	}
	return &Authority{
		log:    log,
		assets: make(map[string]*AssetRegistration),
		hb:     newHeartbeatTracker(livenessWindow),
	}
}

// RegisterAsset creates a new registration. Re-registering an asset that is
// already registered is rejected without mutating state.
func (a *Authority) RegisterAsset(assetID, primaryRouterID string, backupRouterIDs []string, metadata map[string]string) (*AssetRegistration, error) {
	if assetID == "" || primaryRouterID == "" {
		return nil, ledger.NewError(ledger.ErrCodeConfig, "assetID and primaryRouterID are required", nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.assets[assetID]; exists {
		return nil, ledger.NewError(ledger.ErrCodeAlreadyRegistered, "asset "+assetID+" is already registered", nil)
	}

	backups := append([]string(nil), backupRouterIDs...)
	reg := &AssetRegistration{
		AssetID:         assetID,
		PrimaryRouterID: primaryRouterID,
		BackupRouterIDs: backups,
		Metadata:        metadata,
		RegisteredAt:    time.Now(),
	}
	a.assets[assetID] = reg
	return reg, nil
}

// GetRegistration returns the current registration for assetID.
func (a *Authority) GetRegistration(assetID string) (*AssetRegistration, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	reg, ok := a.assets[assetID]
	return reg, ok
}

// Touch records that routerID was heard from just now. router.Router calls
// this whenever a HEARTBEAT (or any other message, since any traffic is
// evidence of liveness) arrives from routerID.
func (a *Authority) Touch(routerID string) {
	a.hb.touch(routerID)
}

// IsAvailable reports whether routerID has been heard from within the
// liveness window.
func (a *Authority) IsAvailable(routerID string) bool {
	return a.hb.isAvailable(routerID)
}

// ValidateAuthority decides whether requestingRouterID may act on assetID:
//  1. requestingRouterID is the registered primary -> authorized.
//  2. requestingRouterID is a registered backup AND the primary is not
//     available -> authorized, with reason "primary unavailable".
//  3. anything else -> denied.
func (a *Authority) ValidateAuthority(assetID, requestingRouterID string) Decision {
	a.mu.RLock()
	reg, ok := a.assets[assetID]
	a.mu.RUnlock()
	if !ok {
		return Decision{Authorized: false, Reason: "asset not registered"}
	}

	if requestingRouterID == reg.PrimaryRouterID {
		return Decision{Authorized: true, Reason: "requester is primary", Primary: reg.PrimaryRouterID, Backups: reg.BackupRouterIDs}
	}

	if reg.isBackup(requestingRouterID) {
		if !a.hb.isAvailable(reg.PrimaryRouterID) {
			return Decision{Authorized: true, Reason: "primary unavailable", Primary: reg.PrimaryRouterID, Backups: reg.BackupRouterIDs}
		}
		return Decision{Authorized: false, Reason: "primary is available", Primary: reg.PrimaryRouterID, Backups: reg.BackupRouterIDs}
	}

	return Decision{Authorized: false, Reason: "requester is neither primary nor backup", Primary: reg.PrimaryRouterID, Backups: reg.BackupRouterIDs}
}

// TransferAuthority reassigns the primary role to newPrimary. Only the
// current primary may initiate the transfer, and newPrimary must already be
// a registered backup.
func (a *Authority) TransferAuthority(assetID, requestingRouterID, newPrimary string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	reg, ok := a.assets[assetID]
	if !ok {
		return ledger.NewError(ledger.ErrCodeReservationNF, "asset "+assetID+" not registered", nil)
	}
	if requestingRouterID != reg.PrimaryRouterID {
		return ledger.NewError(ledger.ErrCodeAuthorityDenied, "only the current primary may transfer authority", nil)
	}
	if !reg.isBackup(newPrimary) {
		return ledger.NewError(ledger.ErrCodeAuthorityDenied, "newPrimary must be a registered backup", nil)
	}

	oldPrimary := reg.PrimaryRouterID
	reg.BackupRouterIDs = replace(reg.BackupRouterIDs, newPrimary, oldPrimary)
	reg.PrimaryRouterID = newPrimary
	a.log.Infow("authority transferred", "asset", assetID, "from", oldPrimary, "to", newPrimary)
	return nil
}

func replace(list []string, remove, add string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v == remove {
			continue
		}
		out = append(out, v)
	}
	return append(out, add)
}
