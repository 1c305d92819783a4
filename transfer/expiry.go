package transfer

import (
	"context"
	"time"
)

// ExpirySweeper periodically forces transfers that outlived the transfer
// TTL without completing to ROLLBACK, and evicts terminal transfers from
// the in-memory table so it never grows without bound.
type ExpirySweeper struct {
	mgr      *Manager
	ttl      time.Duration
	interval time.Duration
}

// NewExpirySweeper builds a sweeper. interval defaults to 60s if zero.
func NewExpirySweeper(mgr *Manager, ttl, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &ExpirySweeper{mgr: mgr, ttl: ttl, interval: interval}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) int {
	now := time.Now()

	s.mgr.mu.RLock()
	var stale, terminal []string
	for id, t := range s.mgr.transfers {
		switch {
		case t.State.Terminal():
			terminal = append(terminal, id)
		case now.Sub(t.CreatedAt) > s.ttl:
			stale = append(stale, id)
		}
	}
	s.mgr.mu.RUnlock()

	for _, id := range stale {
		if err := s.mgr.ForceRollback(ctx, id, "transfer exceeded transferTtl"); err != nil {
			s.mgr.log.Warnw("expiry sweep: force rollback failed", "transfer", id, "error", err)
		}
	}

	// evict the transfers that were already terminal when this sweep scanned
	// the table (the ones it just rolled back go on the next sweep) and
	// release their event subscribers
	s.mgr.mu.Lock()
	for _, id := range terminal {
		delete(s.mgr.transfers, id)
	}
	s.mgr.mu.Unlock()
	for _, id := range terminal {
		s.mgr.bus.Close(id)
	}

	if len(stale) > 0 {
		s.mgr.log.Infow("transfer expiry sweep rolled back stale transfers", "count", len(stale))
	}
	return len(stale)
}
