package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Plumbridge/FinP2P-sub003/confirmation"
	"github.com/Plumbridge/FinP2P-sub003/peering"
)

// transferRequestPayload is the wire payload of a TRANSFER_REQUEST envelope:
// a peer router notifying this one about its side of a cross-ledger
// transfer.
type transferRequestPayload struct {
	TransferID  string `json:"transferId"`
	FromAccount string `json:"fromAccount"`
	ToAccount   string `json:"toAccount"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

// transferResponsePayload is the wire payload of a TRANSFER_RESPONSE
// envelope: a peer router's own confirmation record for a transfer,
// absorbed here so the dual-confirmation aggregate reflects both routers.
type transferResponsePayload struct {
	TransferID   string              `json:"transferId"`
	Status       confirmation.Status `json:"status"`
	LedgerTxHash string              `json:"ledgerTxHash,omitempty"`
}

// wireDispatch registers this router's handler for every inter-router
// message type. Unknown types are handled by peering.Peers itself (logged
// and ignored) before reaching here.
func (r *Router) wireDispatch() {
	r.peers.OnMessage(peering.MsgHeartbeat, r.handleHeartbeat)
	r.peers.OnMessage(peering.MsgTransferRequest, r.handleTransferRequest)
	r.peers.OnMessage(peering.MsgTransferResp, r.handleTransferResponse)
	r.peers.OnMessage(peering.MsgRouteDiscovery, r.handleRouteDiscovery)
	r.peers.OnMessage(peering.MsgRouteResponse, r.handleRouteResponse)
	r.peers.OnMessage(peering.MsgError, r.handleError)
}

// handleHeartbeat records liveness evidence for the sender, feeding
// Authority's failover decision and the shared finp2p:router_heartbeat key.
func (r *Router) handleHeartbeat(from string, env *peering.Envelope) {
	r.Authority.Touch(from)
	if r.kv == nil {
		return
	}
	key := fmt.Sprintf(keyRouterHeartbeat, from)
	ms := fmt.Sprintf("%d", env.Timestamp.UnixMilli())
	if err := r.kv.Set(context.Background(), key, ms); err != nil {
		r.log.Warnw("failed to persist peer heartbeat", "from", from, "error", err)
	}
}

// handleTransferRequest logs the peer's notice of its leg of a transfer.
// This router only needs to know the transfer exists so a later
// TRANSFER_RESPONSE can be matched against it.
func (r *Router) handleTransferRequest(from string, env *peering.Envelope) {
	var p transferRequestPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		r.log.Warnw("malformed TRANSFER_REQUEST payload", "from", from, "error", err)
		return
	}
	r.log.Infow("received transfer request from peer", "from", from, "transfer", p.TransferID)
}

// handleTransferResponse absorbs a peer's confirmation record so the dual
// status recomputes across both routers.
func (r *Router) handleTransferResponse(from string, env *peering.Envelope) {
	var p transferResponsePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		r.log.Warnw("malformed TRANSFER_RESPONSE payload", "from", from, "error", err)
		return
	}
	rec := &confirmation.Record{
		ID:         fmt.Sprintf("%s:%s", p.TransferID, from),
		TransferID: p.TransferID,
		RouterID:   from,
		Status:     p.Status,
		Timestamp:  time.Now(),
		Metadata:   confirmation.RecordMetadata{LedgerTxHash: p.LedgerTxHash},
	}
	if err := r.ConfirmStore.IngestPeerRecord(context.Background(), rec); err != nil {
		r.log.Warnw("failed to ingest peer confirmation record", "from", from, "transfer", p.TransferID, "error", err)
	}
}

// handleRouteDiscovery and handleRouteResponse acknowledge route discovery
// traffic (finding a multi-hop path across routers for assets neither side
// can directly settle); no multi-hop routing protocol is implemented, so
// both are logged no-ops.
func (r *Router) handleRouteDiscovery(from string, env *peering.Envelope) {
	r.log.Infow("received route discovery request", "from", from)
}

func (r *Router) handleRouteResponse(from string, env *peering.Envelope) {
	r.log.Infow("received route discovery response", "from", from)
}

func (r *Router) handleError(from string, env *peering.Envelope) {
	r.log.Warnw("received ERROR message from peer", "from", from, "payload", string(env.Payload))
}
