package ledgermgr

import (
	"context"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/metrics"
)

// ExpirySweeper periodically releases reservations older than the
// configured TTL, unlocking on-chain locks where promoted.
type ExpirySweeper struct {
	mgr      *Manager
	ttl      time.Duration
	interval time.Duration

	expiredGauge prometheusGauge
}

// prometheusGauge narrows *prometheus.Gauge to the one method this file
// uses, so the package doesn't need to import prometheus directly for the
// struct field type.
type prometheusGauge interface {
	Set(float64)
}

// NewExpirySweeper builds a sweeper. interval defaults to 60s if zero is
// passed.
func NewExpirySweeper(mgr *Manager, ttl, interval time.Duration, reg *metrics.Registry) *ExpirySweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	s := &ExpirySweeper{mgr: mgr, ttl: ttl, interval: interval}
	if reg != nil {
		s.expiredGauge = reg.NewGauge("ledgermgr_reservations_expired_total_last_sweep", "reservations released by the most recent expiry sweep")
	}
	return s
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

// sweep releases every reservation whose age exceeds s.ttl, unlocking
// on-chain locks where promoted.
func (s *ExpirySweeper) sweep(ctx context.Context) int {
	now := time.Now()

	s.mgr.reservationsMu.RLock()
	var stale []string
	for id, r := range s.mgr.reservations {
		if now.Sub(r.CreatedAt) > s.ttl {
			stale = append(stale, id)
		}
	}
	s.mgr.reservationsMu.RUnlock()

	for _, id := range stale {
		_ = s.mgr.ReleaseReservation(ctx, id, true)
	}
	if s.expiredGauge != nil {
		s.expiredGauge.Set(float64(len(stale)))
	}
	if len(stale) > 0 {
		s.mgr.log.Infow("expiry sweep released stale reservations", "count", len(stale))
	}
	return len(stale)
}
