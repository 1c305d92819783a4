package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/peering"
)

// runHeartbeatBroadcast periodically sends a HEARTBEAT envelope to every
// known peer and stamps this router's own liveness key in the shared store.
func (r *Router) runHeartbeatBroadcast(ctx context.Context) {
	interval := r.cfg.HeartbeatInterval()
	r.persistOwnHeartbeat(ctx)

	if r.peers != nil {
		r.peers.RunHeartbeatLoop(ctx, interval, defaultMessageTTL, func() []byte {
			r.persistOwnHeartbeat(ctx)
			return []byte(fmt.Sprintf(`{"routerId":%q,"ts":%d}`, r.cfg.RouterID, time.Now().UnixMilli()))
		})
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.persistOwnHeartbeat(ctx)
		}
	}
}

func (r *Router) persistOwnHeartbeat(ctx context.Context) {
	if r.kv == nil {
		return
	}
	key := fmt.Sprintf(keyRouterHeartbeat, r.cfg.RouterID)
	ms := fmt.Sprintf("%d", time.Now().UnixMilli())
	if err := r.kv.Set(ctx, key, ms); err != nil {
		r.log.Warnw("failed to persist own heartbeat", "error", err)
	}
}

// runMetricsRefresh logs the live-peer count and persists the routing table
// snapshot on every tick; it sets no gauges. Exposition itself (the HTTP
// /metrics endpoint) lives outside this module.
func (r *Router) runMetricsRefresh(ctx context.Context) {
	ticker := time.NewTicker(defaultMetricsEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshMetrics()
		}
	}
}

func (r *Router) refreshMetrics() {
	if r.peers == nil {
		return
	}
	alive := r.peers.AliveCount()
	r.log.Debugw("metrics refresh", "alive_peers", alive)
	r.persistRoutingTable(context.Background())
}

// routingTableEntry is one row of the shared finp2p:routing:table blob: the
// roster as this router currently sees it, for operators and peers that
// read the shared store instead of speaking the envelope protocol.
type routingTableEntry struct {
	RouterID         string    `json:"routerId"`
	Endpoint         string    `json:"endpoint"`
	SupportedLedgers []string  `json:"supportedLedgers"`
	Status           string    `json:"status"`
	LastSeen         time.Time `json:"lastSeen"`
}

func (r *Router) persistRoutingTable(ctx context.Context) {
	if r.kv == nil || r.peers == nil {
		return
	}
	topo := r.peers.Topology()
	entries := make([]routingTableEntry, 0, len(topo.Routers))
	for _, info := range topo.Routers {
		entries = append(entries, routingTableEntry{
			RouterID:         info.ID,
			Endpoint:         info.Endpoint,
			SupportedLedgers: info.SupportedLedgers,
			Status:           string(info.Status),
			LastSeen:         info.LastSeen,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RouterID < entries[j].RouterID })

	blob, err := json.Marshal(entries)
	if err != nil {
		r.log.Warnw("failed to marshal routing table", "error", err)
		return
	}
	if err := r.kv.Set(ctx, keyRoutingTable, string(blob)); err != nil {
		r.log.Warnw("failed to persist routing table", "error", err)
	}
}

// Topology returns the router's current view of the federation.
func (r *Router) Topology() peering.NetworkTopology {
	if r.peers == nil {
		return peering.NetworkTopology{}
	}
	return r.peers.Topology()
}
