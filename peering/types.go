// Package peering implements the router roster and inter-router messaging
// surface of the federation: a libp2p host per router, a roster of known
// peers with liveness tracking, and a signed message envelope exchanged
// over that host.
package peering

import (
	"time"
)

// RouterStatus is the liveness state of a router in the federation roster.
type RouterStatus string

const (
	StatusOnline      RouterStatus = "online"
	StatusOffline     RouterStatus = "offline"
	StatusMaintenance RouterStatus = "maintenance"
)

// RouterInfo is one entry of the federation roster.
type RouterInfo struct {
	ID               string
	Endpoint         string
	PublicKey        []byte
	SupportedLedgers []string
	Status           RouterStatus
	LastSeen         time.Time
}

// NetworkTopology is the router's view of the federation: every known
// router plus an adjacency list, refreshed as heartbeats arrive.
type NetworkTopology struct {
	Routers   map[string]*RouterInfo
	Adjacency map[string][]string
}

// MessageType enumerates the inter-router envelope types.
type MessageType string

const (
	MsgHeartbeat       MessageType = "HEARTBEAT"
	MsgTransferRequest MessageType = "TRANSFER_REQUEST"
	MsgTransferResp    MessageType = "TRANSFER_RESPONSE"
	MsgRouteDiscovery  MessageType = "ROUTE_DISCOVERY"
	MsgRouteResponse   MessageType = "ROUTE_RESPONSE"
	MsgError           MessageType = "ERROR"
)

// Envelope is the signed inter-router message. Signature is computed over
// the Payload bytes exactly as transmitted; TTLMillis bounds how long after
// Timestamp the message remains acceptable.
type Envelope struct {
	ID         string      `json:"id"`
	Type       MessageType `json:"type"`
	FromRouter string      `json:"fromRouter"`
	ToRouter   string      `json:"toRouter"`
	Payload    []byte      `json:"payload"`
	Signature  []byte      `json:"signature"`
	Timestamp  time.Time   `json:"timestamp"`
	TTLMillis  int64       `json:"ttl"`
}

// Expired reports whether now-Timestamp exceeds TTLMillis. Expired messages
// must be dropped before dispatch.
func (e *Envelope) Expired(now time.Time) bool {
	if e.TTLMillis <= 0 {
		return false
	}
	return now.Sub(e.Timestamp) > time.Duration(e.TTLMillis)*time.Millisecond
}
