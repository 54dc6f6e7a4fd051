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

package model

import (
	"time"

	"github.com/probeum/probewatch/common"
)

// AccrueTransaction folds one record into the transaction log. The first
// event for a transaction id materializes the transaction with its
// inferred op kind; only operations whose kind is Retained() survive.
// Start is the min of observed timestamps; terminal events set End and
// transition Status.
func (m *NetworkModel) AccrueTransaction(txID string, op common.OperationKind, contractKey, eventKind, peerID string, ts time.Time, terminal bool, status common.TransactionStatus) {
	if !op.Retained() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txByID[txID]
	if !ok {
		tx = &Transaction{ID: txID, Op: op, ContractKey: contractKey, Start: ts, Status: common.StatusPending}
		m.txByID[txID] = tx
		m.transactions = append(m.transactions, tx)
		if len(m.transactions) > MaxTransactions {
			evicted := m.transactions[:len(m.transactions)-MaxTransactions]
			for _, e := range evicted {
				delete(m.txByID, e.ID)
			}
			m.transactions = m.transactions[len(m.transactions)-MaxTransactions:]
		}
	}
	if ts.Before(tx.Start) {
		tx.Start = ts
	}
	tx.Events = append(tx.Events, TxEvent{Timestamp: ts, Kind: eventKind, PeerID: peerID})
	if contractKey != "" {
		tx.ContractKey = contractKey
	}
	if terminal {
		tx.End = ts
		tx.Status = status
	}
}

// RecordPendingOp inserts a pending-op entry for a freshly requested
// operation.
func (m *NetworkModel) RecordPendingOp(txID string, op common.OperationKind, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter(string(op)).requests++
	m.pendingOps[txID] = &PendingOp{TxID: txID, Op: op, Start: ts}
}

// CompletePendingOp removes a pending-op entry (if present), records a
// latency sample when the completion is a success within the sanity
// bound, and bumps the success/failure counter.
func (m *NetworkModel) CompletePendingOp(txID string, op common.OperationKind, ts time.Time, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counter(string(op))
	if success {
		c.successes++
	} else {
		c.failures++
	}
	pending, ok := m.pendingOps[txID]
	if !ok {
		return
	}
	delete(m.pendingOps, txID)
	latency := ts.Sub(pending.Start)
	if success && latency > 0 && latency < 5*time.Minute {
		c.latencies = append(c.latencies, latency)
		if len(c.latencies) > MaxLatencySamples {
			c.latencies = c.latencies[len(c.latencies)-MaxLatencySamples:]
		}
	}
}

// IncrementBroadcastCounter bumps the update-broadcast counter for an
// op kind that has no pending-op lifecycle of its own.
func (m *NetworkModel) IncrementBroadcastCounter(op common.OperationKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter(string(op)).requests++
	m.counter(string(op)).successes++
}

// CleanupStalePendingOps drops pending-op entries older than
// PendingOpTimeout.
func (m *NetworkModel) CleanupStalePendingOps(now time.Time) (removed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.pendingOps {
		if now.Sub(p.Start) >= PendingOpTimeout {
			delete(m.pendingOps, id)
			removed++
		}
	}
	return removed
}

// CleanupStalePropagation drops propagation entries whose peer-first map
// has gone empty (e.g. after a stale-peer sweep purged all contributors).
func (m *NetworkModel) CleanupStalePropagation() (removed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, tl := range m.propagation {
		if len(tl.PeerFirst) == 0 {
			delete(m.propagation, key)
			removed++
		}
	}
	return removed
}

// HistoryEligible is the restricted kind-set eligible for the bounded
// event-history buffer.
func HistoryEligible(kind string) bool {
	switch kind {
	case "put_success", "get_success", "update_success",
		"broadcast_emitted", "update_broadcast_emitted",
		"update_broadcast_received", "update_broadcast_applied",
		"seeding_started", "seeding_stopped",
		"peer_startup", "startup", "peer_shutdown", "shutdown":
		return true
	default:
		return false
	}
}

// StreamEligible is the broader real-time kind-set, a superset of
// HistoryEligible.
func StreamEligible(kind string) bool {
	if HistoryEligible(kind) {
		return true
	}
	switch kind {
	case "get_request", "connect_connected", "disconnect",
		"subscribe_success", "subscribed":
		return true
	default:
		return false
	}
}

// AppendHistory appends an outbound event to the bounded, age-pruned
// history buffer when its kind is history-eligible.
func (m *NetworkModel) AppendHistory(ev OutboundEvent) {
	if !HistoryEligible(ev.Kind) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, ev)
	m.pruneHistoryLocked(ev.Timestamp)
}

func (m *NetworkModel) pruneHistoryLocked(now time.Time) {
	if len(m.history) > MaxHistoryEvents {
		m.history = m.history[len(m.history)-MaxHistoryEvents:]
	}
	cutoff := now.Add(-MaxHistoryAge)
	i := 0
	for i < len(m.history) && m.history[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.history = m.history[i:]
	}
}
