// Package router implements the router core: the glue between the ledger
// manager, authority, confirmation store, confirmation processor and
// transfer state machine, plus lifecycle, peer roster wiring, message
// dispatch and periodic tasks.
package router

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/authority"
	"github.com/Plumbridge/FinP2P-sub003/confirmation"
	"github.com/Plumbridge/FinP2P-sub003/confirmworker"
	"github.com/Plumbridge/FinP2P-sub003/config"
	"github.com/Plumbridge/FinP2P-sub003/kv"
	"github.com/Plumbridge/FinP2P-sub003/ledger"
	"github.com/Plumbridge/FinP2P-sub003/ledgermgr"
	"github.com/Plumbridge/FinP2P-sub003/metrics"
	"github.com/Plumbridge/FinP2P-sub003/peering"
	"github.com/Plumbridge/FinP2P-sub003/transfer"
	"go.uber.org/zap"
)

const (
	keyAssetRegistry    = "finp2p:asset_registry"
	keyRouterAssetsFmt  = "finp2p:router_assets:%s"
	keyRouterHeartbeat  = "finp2p:router_heartbeat:%s"
	keyRoutingTable     = "finp2p:routing:table"
	defaultMessageTTL   = 10 * time.Second
	defaultMetricsEvery = 15 * time.Second
)

// Router is the top-level object gluing every subsystem together. It owns
// no business logic of its own -- every method either dispatches to a
// subsystem or coordinates a handful of them.
type Router struct {
	log *zap.SugaredLogger
	cfg config.Config

	kv      kv.Store
	peers   *peering.Peers
	metrics *metrics.Registry
	signKey ed25519.PrivateKey

	LedgerMgr    *ledgermgr.Manager
	Authority    *authority.Authority
	ConfirmStore *confirmation.Store
	ConfirmProc  *confirmworker.Processor
	TransferMgr  *transfer.Manager

	reservationSweeper *ledgermgr.ExpirySweeper
	transferSweeper    *transfer.ExpirySweeper

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds a fully wired Router. Ledger adapters must be registered via
// RegisterLedgerAdapter before the first transfer is submitted.
func New(log *zap.SugaredLogger, cfg config.Config, store kv.Store, peers *peering.Peers, reg *metrics.Registry, signKey ed25519.PrivateKey) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("router: invalid config: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if reg == nil {
		reg = metrics.New()
	}

	ledgerMgr := ledgermgr.New(log.Named("ledgermgr"))
	auth := authority.New(log.Named("authority"), cfg.HeartbeatInterval())
	confirmStore := confirmation.New(log.Named("confirmation"), store, cfg.RouterID, signKey)

	r := &Router{
		log:          log,
		cfg:          cfg,
		kv:           store,
		peers:        peers,
		metrics:      reg,
		signKey:      signKey,
		LedgerMgr:    ledgerMgr,
		Authority:    auth,
		ConfirmStore: confirmStore,
	}

	procCfg := confirmworker.Config{
		MaxConcurrency:    cfg.Confirmation.MaxConcurrency,
		BatchSize:         cfg.Confirmation.BatchSize,
		ProcessingTimeout: time.Duration(cfg.Confirmation.ProcessingTimeout) * time.Millisecond,
	}
	r.ConfirmProc = confirmworker.New(log.Named("confirmworker"), confirmStore, procCfg, nil).
		WithMetrics(
			reg.NewGauge("confirmworker_queue_depth", "pending confirmation tasks"),
			reg.NewGauge("confirmworker_active", "in-flight confirmation tasks"),
		)

	r.TransferMgr = transfer.New(log.Named("transfer"), ledgerMgr, r.onTransferCompleted)
	r.reservationSweeper = ledgermgr.NewExpirySweeper(ledgerMgr, cfg.ReservationTTL(), 60*time.Second, reg)
	r.transferSweeper = transfer.NewExpirySweeper(r.TransferMgr, 60*time.Minute, 60*time.Second)

	if peers != nil {
		r.wireDispatch()
	}
	return r, nil
}

// RegisterLedgerAdapter registers a ledger adapter with the underlying
// ledger manager.
func (r *Router) RegisterLedgerAdapter(a ledger.Adapter) {
	r.LedgerMgr.RegisterAdapter(a)
}

// onTransferCompleted enqueues a confirmation task once a transfer reaches
// COMPLETED, so the processor writes this router's half of the dual
// confirmation record.
func (r *Router) onTransferCompleted(t *transfer.Transfer) {
	_, err := r.ConfirmProc.AddTask(confirmworker.Task{
		TransferID:   t.ID,
		FromAccount:  t.FromAccount,
		ToAccount:    t.ToAccount,
		Asset:        t.AssetID,
		Amount:       t.Amount.String(),
		LedgerTxHash: t.DestinationHash,
	}, confirmworker.PriorityMedium)
	if err != nil {
		r.log.Warnw("failed to enqueue confirmation task", "transfer", t.ID, "error", err)
	}
}

// SubmitTransfer is the entry point for a transfer intent: it validates this
// router's authority over the asset, then drives the full cross-ledger
// transfer to completion or rollback via the state machine.
func (r *Router) SubmitTransfer(ctx context.Context, fromLedger, toLedger, fromAccount, toAccount, assetID string, amount ledger.Amount) (*transfer.Transfer, error) {
	decision := r.Authority.ValidateAuthority(assetID, r.cfg.RouterID)
	if !decision.Authorized {
		return nil, ledger.NewError(ledger.ErrCodeAuthorityDenied, fmt.Sprintf("router %s is not authorized for asset %s: %s", r.cfg.RouterID, assetID, decision.Reason), nil)
	}
	return r.TransferMgr.InitiateTransfer(ctx, fromLedger, toLedger, fromAccount, toAccount, assetID, amount)
}

// RegisterAsset registers this router as primary for assetID and mirrors the
// registration into the shared key-value store under finp2p:asset_registry
// and finp2p:router_assets:{routerId}.
func (r *Router) RegisterAsset(ctx context.Context, assetID string, backupRouterIDs []string, metadata map[string]string) (*authority.AssetRegistration, error) {
	reg, err := r.Authority.RegisterAsset(assetID, r.cfg.RouterID, backupRouterIDs, metadata)
	if err != nil {
		return nil, err
	}
	if r.kv != nil {
		blob, err := json.Marshal(reg)
		if err != nil {
			return nil, fmt.Errorf("router: marshal asset registration: %w", err)
		}
		if err := r.kv.HSet(ctx, keyAssetRegistry, assetID, string(blob)); err != nil {
			r.log.Warnw("failed to persist asset registration", "asset", assetID, "error", err)
		}
		if err := r.kv.SAdd(ctx, fmt.Sprintf(keyRouterAssetsFmt, r.cfg.RouterID), assetID); err != nil {
			r.log.Warnw("failed to persist router_assets index", "asset", assetID, "error", err)
		}
	}
	return reg, nil
}

// Start launches every periodic task (heartbeat broadcast, metrics refresh,
// expiry sweeps) and is idempotent: a second call on an already-running
// Router is a no-op.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.startBackground(runCtx, r.reservationSweeper.Run)
	r.startBackground(runCtx, r.transferSweeper.Run)
	r.startBackground(runCtx, r.runHeartbeatBroadcast)
	r.startBackground(runCtx, r.runMetricsRefresh)
}

func (r *Router) startBackground(ctx context.Context, fn func(context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(ctx)
	}()
}

// Stop cancels every periodic task and waits for them to exit. Stop on a
// Router that was never started, or a second Stop, is a no-op.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.ConfirmProc.Shutdown(false)
	if r.peers != nil {
		_ = r.peers.Close()
	}
}
