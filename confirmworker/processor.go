// Package confirmworker implements the parallel confirmation processor: a
// bounded-concurrency, priority-ordered worker pool that turns transfer
// legs into confirmation records, with retry/backoff and graceful or forced
// shutdown.
package confirmworker

import (
	"context"
	"sync"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/confirmation"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Task is one unit of confirmation work: the transfer leg details needed to
// call CreateConfirmationRecord.
type Task struct {
	TransferID   string
	FromAccount  string
	ToAccount    string
	Asset        string
	Amount       string
	LedgerTxHash string

	// TaskID, if empty, defaults to TransferID. Retries of the same task
	// always keep the same TaskID.
	TaskID string
	// MaxRetries overrides Config.MaxRetries when > 0.
	MaxRetries int
}

// Result is the outcome recorded for a task id. CompletedAt is stamped
// explicitly, never derived from the task id.
type Result struct {
	TaskID      string
	Record      *confirmation.Record
	Err         error
	RetryCount  int
	CompletedAt time.Time
}

// Confirmer is the subset of confirmation.Store the processor depends on,
// narrowed so tests can fake it.
type Confirmer interface {
	CreateConfirmationRecord(ctx context.Context, transferID, fromAccount, toAccount, asset, amount string, status confirmation.Status, ledgerTxHash string) (*confirmation.Record, error)
}

// Config holds the bounded-pool parameters (defaults in brackets in the
// comment for each field).
type Config struct {
	MaxConcurrency    int           // [10]
	BatchSize         int           // [5]
	ProcessingTimeout time.Duration // [30s]
	MaxRetries        int           // [3]
	ShutdownTimeout   time.Duration // [30s; tests use the same default]
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:    10,
		BatchSize:         5,
		ProcessingTimeout: 30 * time.Second,
		MaxRetries:        3,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Processor is the bounded worker pool. Exactly one scheduler goroutine
// runs at a time; it starts on the first AddTask after idle and exits once
// both queue and active drain.
type Processor struct {
	log       *zap.SugaredLogger
	confirmer Confirmer
	cfg       Config

	onConfirmationCreated func(*Result)

	mu        sync.Mutex
	q         *taskHeap
	active    map[string]struct{}
	completed map[string]*Result
	nextSeq   uint64
	running   bool
	wake      chan struct{}
	// shutdown is set by Shutdown and read by AddTask/requeue, each while
	// holding mu.
	shutdown atomic.Bool

	queueDepth  prometheus.Gauge
	activeGauge prometheus.Gauge
}

// New builds a Processor. onConfirmationCreated, if non-nil, is invoked
// (from a worker goroutine) after every successful CreateConfirmationRecord.
func New(log *zap.SugaredLogger, confirmer Confirmer, cfg Config, onConfirmationCreated func(*Result)) *Processor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	h := &taskHeap{}
	return &Processor{
		log:                   log,
		confirmer:             confirmer,
		cfg:                   cfg,
		onConfirmationCreated: onConfirmationCreated,
		q:                     h,
		active:                make(map[string]struct{}),
		completed:             make(map[string]*Result),
		wake:                  make(chan struct{}, 1),
	}
}

// WithMetrics attaches prometheus gauges for queue depth and active count.
func (p *Processor) WithMetrics(queueDepth, active prometheus.Gauge) *Processor {
	p.queueDepth = queueDepth
	p.activeGauge = active
	return p
}

// AddTask validates the task has a non-empty transfer id, inserts it at
// priority, and ensures the scheduler loop is running. Callable from any
// goroutine.
func (p *Processor) AddTask(task Task, priority Priority) (string, error) {
	if task.TransferID == "" {
		return "", errEmptyTransferID
	}
	taskID := task.TaskID
	if taskID == "" {
		taskID = task.TransferID
	}
	task.TaskID = taskID

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown.Load() {
		return "", errShuttingDown
	}

	heapPush(p.q, &pendingTask{task: task, priority: priority, seq: p.nextSeq})
	p.nextSeq++
	p.reportDepthLocked()

	start := !p.running
	if start {
		p.running = true
	}
	p.signalLocked()
	if start {
		go p.run()
	}
	return taskID, nil
}

func (p *Processor) signalLocked() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Processor) reportDepthLocked() {
	if p.queueDepth != nil {
		p.queueDepth.Set(float64(p.q.Len()))
	}
	if p.activeGauge != nil {
		p.activeGauge.Set(float64(len(p.active)))
	}
}

// GetResult returns the recorded outcome for taskID, if the task has
// completed (successfully or after exhausting retries).
func (p *Processor) GetResult(taskID string) (*Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.completed[taskID]
	return r, ok
}

// run is the scheduler loop: fill free slots batch-wise, then wait for a
// completion signal (bounded at 100ms so a lost signal never deadlocks).
func (p *Processor) run() {
	for {
		p.mu.Lock()
		if p.q.Len() == 0 && len(p.active) == 0 {
			p.running = false
			p.mu.Unlock()
			return
		}

		availableSlots := p.cfg.MaxConcurrency - len(p.active)
		var batch []*pendingTask
		if availableSlots > 0 {
			n := availableSlots
			if p.cfg.BatchSize < n {
				n = p.cfg.BatchSize
			}
			batch = popN(p.q, n)
			for _, t := range batch {
				p.active[t.task.TaskID] = struct{}{}
			}
		}
		p.reportDepthLocked()
		p.mu.Unlock()

		for _, t := range batch {
			go p.execute(t)
		}

		if len(batch) == 0 {
			select {
			case <-p.wake:
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}

// execute runs one attempt of a task. On failure it reschedules with
// exponential backoff (1000 * 2^retryCount ms) until maxRetries is
// exhausted, at which point it records a failed Result.
func (p *Processor) execute(t *pendingTask) {
	maxRetries := p.cfg.MaxRetries
	if t.task.MaxRetries > 0 {
		maxRetries = t.task.MaxRetries
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProcessingTimeout)
	rec, err := p.confirmer.CreateConfirmationRecord(ctx, t.task.TransferID, t.task.FromAccount, t.task.ToAccount, t.task.Asset, t.task.Amount, confirmation.StatusConfirmed, t.task.LedgerTxHash)
	cancel()

	if err == nil {
		result := &Result{TaskID: t.task.TaskID, Record: rec, RetryCount: t.retryCount, CompletedAt: time.Now()}
		p.finish(t.task.TaskID, result)
		if p.onConfirmationCreated != nil {
			p.onConfirmationCreated(result)
		}
		return
	}

	t.retryCount++
	if t.retryCount < maxRetries {
		backoff := time.Duration(1000*pow2(t.retryCount)) * time.Millisecond
		time.AfterFunc(backoff, func() { p.requeue(t) })
		return
	}

	p.finish(t.task.TaskID, &Result{TaskID: t.task.TaskID, Err: err, RetryCount: t.retryCount, CompletedAt: time.Now()})
}

func (p *Processor) requeue(t *pendingTask) {
	p.mu.Lock()
	if p.shutdown.Load() {
		delete(p.active, t.task.TaskID)
		p.mu.Unlock()
		return
	}
	delete(p.active, t.task.TaskID)
	heapPush(p.q, t)
	p.reportDepthLocked()
	start := !p.running
	if start {
		p.running = true
	}
	p.signalLocked()
	p.mu.Unlock()

	if start {
		go p.run()
	}
}

// finish removes taskID from active, records its result, and wakes the
// scheduler so a freed slot can be used immediately.
func (p *Processor) finish(taskID string, result *Result) {
	p.mu.Lock()
	delete(p.active, taskID)
	p.completed[taskID] = result
	p.reportDepthLocked()
	p.signalLocked()
	p.mu.Unlock()
}

// Shutdown drains the processor. A soft shutdown (force=false) waits up to
// cfg.ShutdownTimeout for in-flight tasks to finish before clearing
// anything still queued; a forced shutdown clears the queue and refuses new
// work immediately without waiting on active tasks.
func (p *Processor) Shutdown(force bool) {
	p.mu.Lock()
	p.shutdown.Store(true)
	if force {
		*p.q = (*p.q)[:0]
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	deadline := time.Now().Add(p.cfg.ShutdownTimeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		empty := len(p.active) == 0
		p.mu.Unlock()
		if empty {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	*p.q = (*p.q)[:0]
	p.mu.Unlock()
}

func pow2(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 2
	}
	return r
}
