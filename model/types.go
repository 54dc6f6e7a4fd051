// Copyright 2021 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package model owns the live, queryable network model derived from
// telemetry: peers, topology, subscription trees, contract state,
// propagation timelines, transactions, pending operations, peer
// lifecycle and presence, and bounded event/transfer history.
package model

import (
	"time"

	"github.com/probeum/probewatch/common"
)

// LiveWindow is how recently a peer must have been seen to be considered
// live.
const LiveWindow = 30 * time.Minute

// PendingOpTimeout is how long a pending operation may go without a
// terminal event before it is dropped by stale-cleanup.
const PendingOpTimeout = 5 * time.Minute

// PropagationCatchupWindow bounds how late an observation of the current
// hash may arrive and still count toward propagation (rather than as a
// catch-up that is recorded but not counted).
const PropagationCatchupWindow = 5 * time.Minute

// NeighborDisplayCap truncates a peer's neighbor set when exposed to
// clients. The truncation never mutates the stored set.
const NeighborDisplayCap = 20

const (
	MaxTransactions        = 10000
	InitialTransactionSend = 2000
	MaxLatencySamples      = 1000
	MaxHistoryEvents       = 50000
	MaxHistoryAge          = 2 * time.Hour
	InitialHistorySend     = 20000
	MaxTransferEvents      = 1000
	MaxSnapshotContracts   = 50
	MaxSnapshotLifecycle   = 50
)

// Peer is a node in the overlay network, keyed by IP.
type Peer struct {
	IP         string
	AnonID     string
	SelfIDHash string
	Location   float64
	FirstSeen  time.Time
	LastSeen   time.Time
	Neighbors  map[string]struct{} // IPs
	Identity   string              // telemetry-issued identity, optional
}

// IsLive reports whether the peer has been seen within LiveWindow of now.
func (p *Peer) IsLive(now time.Time) bool {
	return now.Sub(p.LastSeen) < LiveWindow
}

// Edge is an unordered pair of peer IPs.
type Edge struct {
	A, B string
}

// Canon returns the edge with its endpoints in a stable order, so an
// Edge{A,B} and Edge{B,A} compare equal as map keys.
func (e Edge) Canon() Edge {
	if e.A <= e.B {
		return e
	}
	return Edge{e.B, e.A}
}

// SeedingState is the per-(contract, peer) seeding record.
type SeedingState struct {
	IsSeeding       bool
	Upstream        string
	Downstream      []string
	DownstreamCount int
}

// Subscription is the per-contract-key subscriber set and broadcast tree.
type Subscription struct {
	ContractKey string
	Subscribers map[string]struct{}            // peer ids
	Tree        map[string]map[string]struct{} // sender peer id -> target peer ids
	Seeding     map[string]*SeedingState        // peer id -> seeding state
}

// ContractStateEntry is the last-known content hash for one peer on one
// contract.
type ContractStateEntry struct {
	Hash      string
	Timestamp time.Time
	Kind      string
}

// PropagationTimeline tracks how a contract's current hash is spreading.
type PropagationTimeline struct {
	ContractKey string
	Hash        string
	FirstSeen   time.Time
	LastSeen    time.Time
	PeerFirst   map[string]time.Time // peer identity -> first-seen for current hash
	Archived    *ArchivedPropagation
}

// ArchivedPropagation is the final state of a superseded hash window.
type ArchivedPropagation struct {
	Hash          string
	FirstSeen     time.Time
	LastSeen      time.Time
	PropagationMs int64
}

// TxEvent is one (timestamp, event-kind, peer-id) tuple in a
// transaction's history.
type TxEvent struct {
	Timestamp time.Time
	Kind      string
	PeerID    string
}

// Transaction is a correlated sequence of events sharing a 26-character
// transaction id.
type Transaction struct {
	ID          string
	Op          common.OperationKind
	ContractKey string
	Events      []TxEvent
	Start       time.Time
	End         time.Time
	Status      common.TransactionStatus
}

// PendingOp is an in-flight operation awaiting a terminal event.
type PendingOp struct {
	TxID  string
	Op    common.OperationKind
	Start time.Time
}

// Lifecycle is a peer's process lifecycle record, keyed by telemetry
// identity.
type Lifecycle struct {
	Identity      string
	Version       string
	Arch          string
	OS            string
	OSVersion     string
	Gateway       bool
	Startup       time.Time
	Shutdown      *time.Time
	Graceful      *bool
	ShutdownNote  string
}

// IsActive reports whether the identity is still running: no shutdown
// recorded and associated with a public IP.
func (l *Lifecycle) IsActive(hasPublicIP bool) bool {
	return l.Shutdown == nil && hasPublicIP
}

// TransferEvent is a transport-layer completion record.
type TransferEvent struct {
	Timestamp   time.Time
	Direction   string
	Bytes       int64
	Throughput  float64
	Window      int64
	RTT         time.Duration
	Slowdowns   int
	Timeouts    int
}

// OutboundEvent is what the interpreter emits for downstream fan-out.
type OutboundEvent struct {
	Timestamp      time.Time
	Kind           string // display kind
	PeerID         string // emitter anon id
	SelfIDHash     string
	Location       float64
	TimeString     string

	FromPeer     string
	FromLocation float64
	ToPeer       string
	ToLocation   float64
	HasFromTo    bool

	Connection    bool
	Disconnection bool

	ContractKeyShort string
	ContractKeyFull  string

	StateHashBefore string
	StateHashAfter  string

	TransactionID string
}
