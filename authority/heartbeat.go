package authority

import (
	"sync"
	"time"
)

// heartbeatTracker records the last-seen time per router and answers
// liveness questions against a fixed window.
type heartbeatTracker struct {
	window time.Duration

	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

func newHeartbeatTracker(window time.Duration) *heartbeatTracker {
	return &heartbeatTracker{
		window:   window,
		lastSeen: make(map[string]time.Time),
	}
}

func (h *heartbeatTracker) touch(routerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSeen[routerID] = time.Now()
}

// isAvailable: alive iff last activity is more recent than the window. A
// router never heard from is never available.
func (h *heartbeatTracker) isAvailable(routerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.lastSeen[routerID]
	if !ok {
		return false
	}
	return time.Since(t) < h.window
}
