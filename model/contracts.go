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

import "time"

// UpdateContractState records a new content hash for (contract, identity)
// if it is newer than what is on file. Returns false if the update was
// ignored as stale.
func (m *NetworkModel) UpdateContractState(contractKey, ident, hash, kind string, ts time.Time) bool {
	if ident == "" || hash == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byPeer, ok := m.contractStates[contractKey]
	if !ok {
		byPeer = make(map[string]*ContractStateEntry)
		m.contractStates[contractKey] = byPeer
	}
	if existing, ok := byPeer[ident]; ok && !existing.Timestamp.Before(ts) {
		return false
	}
	byPeer[ident] = &ContractStateEntry{Hash: hash, Timestamp: ts, Kind: kind}
	return true
}

// TrackPropagation folds one observation of a contract's current hash
// into its propagation timeline. When the observed hash differs from the
// tracked current hash, the current window is archived and a new one
// begins. When it matches, the peer's first-seen time is recorded only
// if it falls within PropagationCatchupWindow of the window's start;
// later arrivals are catch-ups and are not counted.
func (m *NetworkModel) TrackPropagation(contractKey, ident, hash string, ts time.Time) {
	if hash == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tl, ok := m.propagation[contractKey]
	if !ok {
		tl = &PropagationTimeline{
			ContractKey: contractKey,
			Hash:        hash,
			FirstSeen:   ts,
			LastSeen:    ts,
			PeerFirst:   map[string]time.Time{ident: ts},
		}
		m.propagation[contractKey] = tl
		return
	}
	if tl.Hash != hash {
		propagationMs := tl.LastSeen.Sub(tl.FirstSeen).Milliseconds()
		tl.Archived = &ArchivedPropagation{
			Hash:          tl.Hash,
			FirstSeen:     tl.FirstSeen,
			LastSeen:      tl.LastSeen,
			PropagationMs: propagationMs,
		}
		tl.Hash = hash
		tl.FirstSeen = ts
		tl.LastSeen = ts
		tl.PeerFirst = map[string]time.Time{ident: ts}
		return
	}
	if ts.After(tl.LastSeen) {
		tl.LastSeen = ts
	}
	if _, seen := tl.PeerFirst[ident]; !seen {
		if ts.Sub(tl.FirstSeen) <= PropagationCatchupWindow {
			tl.PeerFirst[ident] = ts
		}
	}
}

// SubscriberAdd adds a peer id to a contract's subscriber set.
func (m *NetworkModel) SubscriberAdd(contractKey, peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscription(contractKey, true).Subscribers[peerID] = struct{}{}
}

// BroadcastTreeAdd accretes a sender -> target edge into a contract's
// broadcast tree.
func (m *NetworkModel) BroadcastTreeAdd(contractKey, sender, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.subscription(contractKey, true)
	targets, ok := sub.Tree[sender]
	if !ok {
		targets = make(map[string]struct{})
		sub.Tree[sender] = targets
	}
	targets[target] = struct{}{}
}

// SeedingUpdate applies a mutator to the per-(contract,peer) seeding
// state, creating it if absent.
func (m *NetworkModel) SeedingUpdate(contractKey, peerID string, mutate func(*SeedingState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.subscription(contractKey, true)
	st, ok := sub.Seeding[peerID]
	if !ok {
		st = &SeedingState{}
		sub.Seeding[peerID] = st
	}
	mutate(st)
}

// RegisterLifecycle applies a mutator to a peer's lifecycle record,
// creating it if absent.
func (m *NetworkModel) RegisterLifecycle(ident string, mutate func(*Lifecycle)) {
	if ident == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lifecycles[ident]
	if !ok {
		l = &Lifecycle{Identity: ident}
		m.lifecycles[ident] = l
	}
	mutate(l)
}

// AppendTransfer appends a transport-layer completion record to the
// bounded transfer ring buffer.
func (m *NetworkModel) AppendTransfer(ev TransferEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, ev)
	if len(m.transfers) > MaxTransferEvents {
		m.transfers = m.transfers[len(m.transfers)-MaxTransferEvents:]
	}
}
