package ledgermgr

import (
	"context"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/ledger"
)

// reservationQueue is the per-(ledger,account,asset) FIFO worker. One
// goroutine per *active* key reads pending requests in arrival order; the
// goroutine exits (and the queue entry is deleted) once it drains, so an
// idle key costs nothing and contention never grows the call stack.
type reservationQueue struct {
	pending []*reserveRequest
	running bool
}

type reserveRequest struct {
	ctx                      context.Context
	ledgerID, account, asset string
	amount                   ledger.Amount
	opID                     string
	result                   chan reserveResult
}

type reserveResult struct {
	id  string
	err error
}

func (m *Manager) enqueueReserve(req *reserveRequest) {
	key := keyFor(req.ledgerID, req.account, req.asset)

	m.queuesMu.Lock()
	q, ok := m.queues[key]
	if !ok {
		q = &reservationQueue{}
		m.queues[key] = q
	}
	q.pending = append(q.pending, req)
	start := !q.running
	if start {
		q.running = true
	}
	m.queuesMu.Unlock()

	if start {
		go m.runQueue(key, q)
	}
}

// runQueue drains q in FIFO order until empty, then removes it from the
// manager's queue map. It never recurses and never blocks other keys.
func (m *Manager) runQueue(key string, q *reservationQueue) {
	for {
		m.queuesMu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			delete(m.queues, key)
			m.queuesMu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		m.queuesMu.Unlock()

		req.result <- m.doReserve(req)
	}
}

// doReserve is the reservation critical section, run with exclusive access
// to its (ledger,account,asset) key by construction (only runQueue calls it,
// one request at a time).
func (m *Manager) doReserve(req *reserveRequest) reserveResult {
	a, err := m.requireConnected(req.ledgerID)
	if err != nil {
		return reserveResult{err: err}
	}

	available, err := a.GetAvailable(req.ctx, req.account, req.asset)
	if err != nil {
		return reserveResult{err: ledger.Wrap(ledger.ErrCodeAdapter, "getAvailable failed", err)}
	}
	trulyAvailable := available.Sub(m.localReserved(req.ledgerID, req.account, req.asset))
	if trulyAvailable.LessThan(req.amount) {
		return reserveResult{err: ledger.NewError(ledger.ErrCodeInsufficientFunds,
			"insufficient balance for reservation", nil)}
	}

	id := newReservationID()
	r := &BalanceReservation{
		ID:        id,
		LedgerID:  req.ledgerID,
		AccountID: req.account,
		AssetID:   req.asset,
		Amount:    req.amount,
		CreatedAt: time.Now(),
	}

	m.reservationsMu.Lock()
	m.reservations[id] = r
	m.reservationsMu.Unlock()

	if req.opID != "" {
		m.appendOperationReservation(req.opID, id)
	}

	return reserveResult{id: id}
}

// ReserveBalance serializes per (ledgerID, account, asset) and returns a
// fresh reservation id on success. amount == 0 is rejected before any I/O.
func (m *Manager) ReserveBalance(ctx context.Context, ledgerID, account, asset string, amount ledger.Amount, opID ...string) (string, error) {
	if amount.IsZero() {
		return "", ledger.NewError(ledger.ErrCodeInsufficientFunds, "amount must be greater than zero", nil)
	}
	op := ""
	if len(opID) > 0 {
		op = opID[0]
	}

	req := &reserveRequest{
		ctx: ctx, ledgerID: ledgerID, account: account, asset: asset,
		amount: amount, opID: op, result: make(chan reserveResult, 1),
	}
	m.enqueueReserve(req)

	select {
	case res := <-req.result:
		return res.id, res.err
	case <-ctx.Done():
		return "", ledger.Wrap(ledger.ErrCodeTimeout, "reserveBalance", ctx.Err())
	}
}

// LockReservedBalance promotes a reservation to an on-ledger lock. It is
// idempotent: calling it twice on the same id returns the same lockTxHash
// without issuing a second on-ledger lock.
func (m *Manager) LockReservedBalance(ctx context.Context, reservationID string) (string, error) {
	m.reservationsMu.Lock()
	r, ok := m.reservations[reservationID]
	if !ok {
		m.reservationsMu.Unlock()
		return "", ledger.NewError(ledger.ErrCodeReservationNF, "reservation "+reservationID+" not found", nil)
	}
	if r.Locked() {
		hash := r.LockTxHash
		m.reservationsMu.Unlock()
		return hash, nil
	}
	ledgerID, account, asset, amount := r.LedgerID, r.AccountID, r.AssetID, r.Amount
	m.reservationsMu.Unlock()

	a, err := m.requireConnected(ledgerID)
	if err != nil {
		return "", err
	}
	txHash, err := a.LockAsset(ctx, account, asset, amount)
	if err != nil {
		return "", ledger.Wrap(ledger.ErrCodeAdapter, "lockAsset failed", err)
	}

	m.reservationsMu.Lock()
	defer m.reservationsMu.Unlock()
	// re-check: another goroutine may have locked it while we were calling
	// the adapter. First writer wins; the extra adapter lock is equivalent
	// to a repeated client-side retry, which the ledger must tolerate.
	if r2, ok := m.reservations[reservationID]; ok {
		if r2.Locked() {
			return r2.LockTxHash, nil
		}
		r2.LockTxHash = txHash
	}
	return txHash, nil
}

// ReleaseReservation removes a reservation. If unlock is true and the
// reservation had been promoted to an on-ledger lock, it also unlocks.
// Unlock failures are logged but never prevent the reservation row from
// being deleted; a reservation that cannot be removed would consume balance
// forever.
func (m *Manager) ReleaseReservation(ctx context.Context, reservationID string, unlock bool) error {
	m.reservationsMu.Lock()
	r, ok := m.reservations[reservationID]
	if !ok {
		m.reservationsMu.Unlock()
		return nil
	}
	delete(m.reservations, reservationID)
	m.reservationsMu.Unlock()

	if !unlock || !r.Locked() {
		return nil
	}

	a, err := m.requireConnected(r.LedgerID)
	if err != nil {
		m.log.Warnw("release reservation: adapter unavailable for unlock", "reservation", reservationID, "error", err)
		return nil
	}
	if _, err := a.UnlockAsset(ctx, r.AccountID, r.AssetID, r.Amount); err != nil {
		m.log.Warnw("release reservation: unlock failed", "reservation", reservationID, "error", err)
	}
	return nil
}
