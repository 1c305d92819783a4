package ledger

import "context"

// TxStatus is the finality state of a single-ledger transaction as reported
// by an adapter. Adapters must not report Confirmed before their own
// ledger's finality rule is satisfied.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Transaction is the adapter-reported view of one on-ledger transaction.
type Transaction struct {
	TxHash    string
	LedgerID  string
	Status    TxStatus
	Timestamp int64 // unix millis
}

// EventKind enumerates the adapter events that drive the transfer state
// machine: AssetLocked and the terminal transaction states.
type EventKind string

const (
	EventAssetLocked   EventKind = "AssetLocked"
	EventAssetUnlocked EventKind = "AssetUnlocked"
	EventMintCompleted EventKind = "MintCompleted"
	EventTxConfirmed   EventKind = "TxConfirmed"
	EventTxFailed      EventKind = "TxFailed"
)

// Event is one adapter-originated occurrence, delivered on the per-ledger
// channel returned by Adapter.Events.
type Event struct {
	Kind     EventKind
	LedgerID string
	TxHash   string
	Account  FinID
	Asset    FinID
	Amount   Amount
}

// FinalityPolicy states how many confirmations / how much elapsed time must
// pass before a ledger event is acceptable evidence of finality. Policies
// are adapter-defined; the router consults them, it does not hardcode a
// universal threshold.
type FinalityPolicy struct {
	MinConfirmations uint32
	MinBlockDepth    uint32
	MinElapsed       int64 // milliseconds since the event was first observed
}

// Adapter is the uniform capability set every concrete ledger integration
// (Sui, Hedera, mock, ...) exposes to the router. Every method that can fail
// returns a *ledger.Error tagged with one of the Code values in errors.go.
type Adapter interface {
	LedgerID() string

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	CreateAsset(ctx context.Context, spec AssetSpec) (Asset, error)
	GetAsset(ctx context.Context, id string) (Asset, bool, error)

	CreateAccount(ctx context.Context, institutionID string) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, bool, error)

	GetBalance(ctx context.Context, account, asset string) (Amount, error)
	GetAvailable(ctx context.Context, account, asset string) (Amount, error)
	GetLocked(ctx context.Context, account, asset string) (Amount, error)

	Transfer(ctx context.Context, from, to, asset string, amount Amount) (txHash string, err error)
	LockAsset(ctx context.Context, account, asset string, amount Amount) (txHash string, err error)
	UnlockAsset(ctx context.Context, account, asset string, amount Amount) (txHash string, err error)

	GetTransaction(ctx context.Context, txHash string) (Transaction, bool, error)
	GetTransactionStatus(ctx context.Context, txHash string) (TxStatus, error)

	// FinalityPolicy is the threshold this adapter's ledger needs before a
	// lock/transfer may be treated as final by the transfer state machine.
	FinalityPolicy() FinalityPolicy

	// Events returns the channel on which this adapter publishes Event
	// values. The channel is valid for the lifetime of a connected adapter;
	// callers must not close it.
	Events() <-chan Event
}
