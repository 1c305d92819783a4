package confirmworker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/confirmation"
	"github.com/stretchr/testify/require"
)

// fakeConfirmer records the order CreateConfirmationRecord was invoked in
// and can be told to fail a fixed number of times per transferID before
// succeeding.
type fakeConfirmer struct {
	mu         sync.Mutex
	order      []string
	failUntil  map[string]int
	calls      map[string]int
	blockUntil chan struct{} // if non-nil, every call waits on it before proceeding
}

func newFakeConfirmer() *fakeConfirmer {
	return &fakeConfirmer{failUntil: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeConfirmer) CreateConfirmationRecord(ctx context.Context, transferID, fromAccount, toAccount, asset, amount string, status confirmation.Status, ledgerTxHash string) (*confirmation.Record, error) {
	if f.blockUntil != nil {
		<-f.blockUntil
	}
	f.mu.Lock()
	f.order = append(f.order, transferID)
	f.calls[transferID]++
	calls := f.calls[transferID]
	failUntil := f.failUntil[transferID]
	f.mu.Unlock()

	if calls <= failUntil {
		return nil, fmt.Errorf("simulated failure %d for %s", calls, transferID)
	}
	return &confirmation.Record{ID: "rec-" + transferID, TransferID: transferID, Status: confirmation.StatusConfirmed}, nil
}

// TestPriorityOrderingWithSingleWorker: with maxConcurrency=1, low-1 takes
// the only worker slot; low-2 and then high-1 are queued behind it, and
// high-1's createConfirmationRecord is invoked before low-2's.
func TestPriorityOrderingWithSingleWorker(t *testing.T) {
	confirmer := newFakeConfirmer()
	confirmer.blockUntil = make(chan struct{})

	cfg := DefaultConfig()
	cfg.MaxConcurrency = 1
	p := New(nil, confirmer, cfg, nil)

	_, err := p.AddTask(Task{TransferID: "low-1"}, PriorityLow)
	require.NoError(t, err)

	// Give the scheduler a moment to pick up low-1 and block it inside
	// CreateConfirmationRecord (it holds the single worker slot), so
	// low-2 and high-1 are strictly queued behind it, not raced with it.
	time.Sleep(20 * time.Millisecond)

	_, err = p.AddTask(Task{TransferID: "low-2"}, PriorityLow)
	require.NoError(t, err)
	_, err = p.AddTask(Task{TransferID: "high-1"}, PriorityHigh)
	require.NoError(t, err)

	close(confirmer.blockUntil)

	require.Eventually(t, func() bool {
		_, ok1 := p.GetResult("low-1")
		_, ok2 := p.GetResult("high-1")
		_, ok3 := p.GetResult("low-2")
		return ok1 && ok2 && ok3
	}, time.Second, 5*time.Millisecond)

	confirmer.mu.Lock()
	order := append([]string(nil), confirmer.order...)
	confirmer.mu.Unlock()

	require.Equal(t, []string{"low-1", "high-1", "low-2"}, order)
}

// TestRetryWithBackoffEventuallySucceeds checks a task that fails twice
// then succeeds is retried and produces a success Result.
func TestRetryWithBackoffEventuallySucceeds(t *testing.T) {
	confirmer := newFakeConfirmer()
	confirmer.failUntil["T1"] = 2

	cfg := DefaultConfig()
	cfg.MaxRetries = 5
	var created int32
	p := New(nil, confirmer, cfg, func(r *Result) { atomic.AddInt32(&created, 1) })

	_, err := p.AddTask(Task{TransferID: "T1"}, PriorityMedium)
	require.NoError(t, err)

	// two failures cost 2s + 4s of backoff before the successful attempt
	require.Eventually(t, func() bool {
		r, ok := p.GetResult("T1")
		return ok && r.Err == nil
	}, 10*time.Second, 10*time.Millisecond)

	r, _ := p.GetResult("T1")
	require.NoError(t, r.Err)
	require.Equal(t, 2, r.RetryCount)
	require.False(t, r.CompletedAt.IsZero())
	require.Equal(t, int32(1), atomic.LoadInt32(&created))
}

// TestExhaustedRetriesRecordFailure checks a task that always fails is
// recorded as failed once maxRetries is exhausted, and that no further
// attempts occur after that.
func TestExhaustedRetriesRecordFailure(t *testing.T) {
	confirmer := newFakeConfirmer()
	confirmer.failUntil["T2"] = 1000

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	p := New(nil, confirmer, cfg, nil)

	_, err := p.AddTask(Task{TransferID: "T2"}, PriorityMedium)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := p.GetResult("T2")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	r, _ := p.GetResult("T2")
	require.Error(t, r.Err)

	attemptsAtCompletion := func() int {
		confirmer.mu.Lock()
		defer confirmer.mu.Unlock()
		return confirmer.calls["T2"]
	}()
	time.Sleep(50 * time.Millisecond)
	confirmer.mu.Lock()
	finalAttempts := confirmer.calls["T2"]
	confirmer.mu.Unlock()
	require.Equal(t, attemptsAtCompletion, finalAttempts, "no further attempts after a task completes")
}

func TestAddTaskRejectsEmptyTransferID(t *testing.T) {
	p := New(nil, newFakeConfirmer(), DefaultConfig(), nil)
	_, err := p.AddTask(Task{}, PriorityMedium)
	require.Error(t, err)
}

func TestShutdownSoftDrainsActiveTasks(t *testing.T) {
	confirmer := newFakeConfirmer()
	confirmer.blockUntil = make(chan struct{})
	p := New(nil, confirmer, DefaultConfig(), nil)

	_, err := p.AddTask(Task{TransferID: "T3"}, PriorityMedium)
	require.NoError(t, err)

	// Let the scheduler move T3 from the queue into active, then release it
	// only after Shutdown has started waiting on active work.
	time.Sleep(20 * time.Millisecond)
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(confirmer.blockUntil)
	}()

	p.Shutdown(false)

	_, ok := p.GetResult("T3")
	require.True(t, ok)

	_, err = p.AddTask(Task{TransferID: "T4"}, PriorityMedium)
	require.Error(t, err)
}

func TestShutdownForceClearsQueueImmediately(t *testing.T) {
	confirmer := newFakeConfirmer()
	confirmer.blockUntil = make(chan struct{}) // never closed: in-flight task never finishes

	cfg := DefaultConfig()
	cfg.MaxConcurrency = 1
	p := New(nil, confirmer, cfg, nil)

	_, err := p.AddTask(Task{TransferID: "T5"}, PriorityMedium)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond) // let it occupy the single worker slot

	_, err = p.AddTask(Task{TransferID: "T6"}, PriorityMedium)
	require.NoError(t, err)

	p.Shutdown(true)

	_, ok := p.GetResult("T6")
	require.False(t, ok, "force shutdown must drop queued work without running it")
}
