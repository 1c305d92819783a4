// Package mock implements ledger.Adapter entirely in memory. It stands in
// for the concrete ledger integrations (Sui, Hedera, Overledger, Fusion,
// ...) in tests and single-node deployments, satisfying the production
// interface exactly rather than exposing a parallel test-only API.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
	"github.com/google/uuid"
)

type balanceKey struct {
	account string
	asset   string
}

// Adapter is a fully in-memory ledger.Adapter. Locking is emulated with a
// per-(account,asset) locked-amount counter, since the mock ledger has no
// native freeze primitive.
type Adapter struct {
	mu        sync.Mutex
	ledgerID  string
	connected bool

	assets   map[string]ledger.Asset
	accounts map[string]ledger.Account
	balances map[balanceKey]ledger.Amount
	locked   map[balanceKey]ledger.Amount
	txs      map[string]ledger.Transaction

	finality ledger.FinalityPolicy
	events   chan ledger.Event
}

// New builds a mock adapter for ledgerID. Finality is instant: zero
// confirmations required.
func New(ledgerID string) *Adapter {
	return &Adapter{
		ledgerID: ledgerID,
		assets:   make(map[string]ledger.Asset),
		accounts: make(map[string]ledger.Account),
		balances: make(map[balanceKey]ledger.Amount),
		locked:   make(map[balanceKey]ledger.Amount),
		txs:      make(map[string]ledger.Transaction),
		finality: ledger.FinalityPolicy{MinConfirmations: 0, MinBlockDepth: 0, MinElapsed: 0},
		events:   make(chan ledger.Event, 256),
	}
}

func (a *Adapter) LedgerID() string { return a.ledgerID }

func (a *Adapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *Adapter) mustConnected() error {
	if !a.IsConnected() {
		return ledger.NewError(ledger.ErrCodeNotConnected, fmt.Sprintf("mock adapter %s not connected", a.ledgerID), nil)
	}
	return nil
}

func (a *Adapter) CreateAsset(_ context.Context, spec ledger.AssetSpec) (ledger.Asset, error) {
	if err := a.mustConnected(); err != nil {
		return ledger.Asset{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()
	asset := ledger.Asset{
		ID:              id,
		FinID:           spec.FinID,
		Symbol:          spec.Symbol,
		Name:            spec.Name,
		Decimals:        spec.Decimals,
		LedgerID:        a.ledgerID,
		ContractAddress: spec.ContractAddress,
		Metadata:        spec.Metadata,
	}
	a.assets[id] = asset
	return asset, nil
}

func (a *Adapter) GetAsset(_ context.Context, id string) (ledger.Asset, bool, error) {
	if err := a.mustConnected(); err != nil {
		return ledger.Asset{}, false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	asset, ok := a.assets[id]
	return asset, ok, nil
}

func (a *Adapter) CreateAccount(_ context.Context, institutionID string) (ledger.Account, error) {
	if err := a.mustConnected(); err != nil {
		return ledger.Account{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()
	acct := ledger.Account{
		FinID:         ledger.FinID{ID: id, Kind: ledger.KindAccount, Domain: a.ledgerID},
		Address:       id,
		LedgerID:      a.ledgerID,
		InstitutionID: institutionID,
		Balances:      map[string]ledger.Amount{},
	}
	a.accounts[id] = acct
	return acct, nil
}

func (a *Adapter) GetAccount(_ context.Context, id string) (ledger.Account, bool, error) {
	if err := a.mustConnected(); err != nil {
		return ledger.Account{}, false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.accounts[id]
	if !ok {
		return ledger.Account{}, false, nil
	}
	acct.Balances = a.snapshotBalances(id)
	return acct, true, nil
}

func (a *Adapter) snapshotBalances(account string) map[string]ledger.Amount {
	out := make(map[string]ledger.Amount)
	for k, v := range a.balances {
		if k.account == account {
			out[k.asset] = v
		}
	}
	return out
}

// Mint is test/bootstrap-only: it credits an account without debiting
// anything, modeling the initial supply issuance a real adapter performs
// out-of-band (e.g. via a minting contract call) before the router ever
// touches the ledger.
func (a *Adapter) Mint(_ context.Context, account, asset string, amount ledger.Amount) error {
	if err := a.mustConnected(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := balanceKey{account, asset}
	a.balances[key] = a.balances[key].Add(amount)
	return nil
}

func (a *Adapter) GetBalance(_ context.Context, account, asset string) (ledger.Amount, error) {
	if err := a.mustConnected(); err != nil {
		return ledger.Amount{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[balanceKey{account, asset}], nil
}

func (a *Adapter) GetLocked(_ context.Context, account, asset string) (ledger.Amount, error) {
	if err := a.mustConnected(); err != nil {
		return ledger.Amount{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked[balanceKey{account, asset}], nil
}

// GetAvailable returns balance - locked.
func (a *Adapter) GetAvailable(_ context.Context, account, asset string) (ledger.Amount, error) {
	if err := a.mustConnected(); err != nil {
		return ledger.Amount{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := balanceKey{account, asset}
	return a.balances[key].Sub(a.locked[key]), nil
}

func (a *Adapter) Transfer(_ context.Context, from, to, asset string, amount ledger.Amount) (string, error) {
	if err := a.mustConnected(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	fromKey := balanceKey{from, asset}
	available := a.balances[fromKey].Sub(a.locked[fromKey])
	if available.LessThan(amount) {
		return "", ledger.NewError(ledger.ErrCodeInsufficientFunds, "transfer exceeds available balance", nil)
	}
	a.balances[fromKey] = a.balances[fromKey].Sub(amount)
	toKey := balanceKey{to, asset}
	a.balances[toKey] = a.balances[toKey].Add(amount)

	txHash := a.recordTx()
	a.publish(ledger.Event{Kind: ledger.EventTxConfirmed, LedgerID: a.ledgerID, TxHash: txHash, Asset: ledger.FinID{ID: asset}, Amount: amount})
	return txHash, nil
}

func (a *Adapter) LockAsset(_ context.Context, account, asset string, amount ledger.Amount) (string, error) {
	if err := a.mustConnected(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := balanceKey{account, asset}
	available := a.balances[key].Sub(a.locked[key])
	if available.LessThan(amount) {
		return "", ledger.NewError(ledger.ErrCodeInsufficientFunds, "lock exceeds available balance", nil)
	}
	a.locked[key] = a.locked[key].Add(amount)

	txHash := a.recordTx()
	a.publish(ledger.Event{Kind: ledger.EventAssetLocked, LedgerID: a.ledgerID, TxHash: txHash, Account: ledger.FinID{ID: account}, Asset: ledger.FinID{ID: asset}, Amount: amount})
	return txHash, nil
}

func (a *Adapter) UnlockAsset(_ context.Context, account, asset string, amount ledger.Amount) (string, error) {
	if err := a.mustConnected(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := balanceKey{account, asset}
	a.locked[key] = a.locked[key].Sub(amount)

	txHash := a.recordTx()
	a.publish(ledger.Event{Kind: ledger.EventAssetUnlocked, LedgerID: a.ledgerID, TxHash: txHash, Account: ledger.FinID{ID: account}, Asset: ledger.FinID{ID: asset}, Amount: amount})
	return txHash, nil
}

func (a *Adapter) GetTransaction(_ context.Context, txHash string) (ledger.Transaction, bool, error) {
	if err := a.mustConnected(); err != nil {
		return ledger.Transaction{}, false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	tx, ok := a.txs[txHash]
	return tx, ok, nil
}

func (a *Adapter) GetTransactionStatus(_ context.Context, txHash string) (ledger.TxStatus, error) {
	if err := a.mustConnected(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	tx, ok := a.txs[txHash]
	if !ok {
		return "", ledger.NewError(ledger.ErrCodeStore, "unknown transaction "+txHash, nil)
	}
	return tx.Status, nil
}

func (a *Adapter) FinalityPolicy() ledger.FinalityPolicy { return a.finality }

func (a *Adapter) Events() <-chan ledger.Event { return a.events }

// recordTx must be called with a.mu held.
func (a *Adapter) recordTx() string {
	txHash := uuid.NewString()
	a.txs[txHash] = ledger.Transaction{TxHash: txHash, LedgerID: a.ledgerID, Status: ledger.TxConfirmed}
	return txHash
}

// publish must be called with a.mu held; it never blocks the caller for
// long since the channel is generously buffered, but drops the event rather
// than deadlock if a test leaves it unread.
func (a *Adapter) publish(ev ledger.Event) {
	select {
	case a.events <- ev:
	default:
	}
}

var _ ledger.Adapter = (*Adapter)(nil)
