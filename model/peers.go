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

	"github.com/probeum/probewatch/identity"
)

// RecordPeer creates or updates a peer record for a public IP, refreshing
// its last-seen timestamp and location. If identity is non-empty and
// differs from the previously recorded identity for this IP, the caller
// must invoke CleanupStalePeerID(oldIdentity) first — the interpreter
// does this before calling RecordPeer, per §4.1.
func (m *NetworkModel) RecordPeer(ip string, location float64, ident string, now time.Time) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[ip]
	if !ok {
		p = &Peer{
			IP:         ip,
			AnonID:     identity.AnonymizeIP(ip),
			SelfIDHash: identity.SelfIDHash(ip),
			FirstSeen:  now,
			Neighbors:  make(map[string]struct{}),
		}
		m.peers[ip] = p
		m.ipByAnon[p.AnonID] = ip
	}
	p.Location = location
	p.LastSeen = now
	if ident != "" && ident != p.Identity {
		p.Identity = ident
		m.ipByIdent[ident] = ip
		m.identByIP[ip] = ident
	}
	return p
}

// Touch refreshes a known peer's last-seen timestamp without creating a
// new record (used for address-only field updates).
func (m *NetworkModel) Touch(ip string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[ip]; ok {
		p.LastSeen = now
	}
}

// TouchByIdentity refreshes the last-seen of the peer currently
// associated with a telemetry identity, if any.
func (m *NetworkModel) TouchByIdentity(ident string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ip, ok := m.ipByIdent[ident]; ok {
		if p, ok := m.peers[ip]; ok {
			p.LastSeen = now
		}
	}
}

// IPForIdentity returns the IP currently bound to a telemetry identity.
func (m *NetworkModel) IPForIdentity(ident string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ip, ok := m.ipByIdent[ident]
	return ip, ok
}

// PeerByIP returns a copy of the peer record for ip, if any.
func (m *NetworkModel) PeerByIP(ip string) (Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[ip]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// RecordEdge inserts an undirected edge between two peer IPs, updating
// both endpoints' neighbor sets symmetrically.
func (m *NetworkModel) RecordEdge(a, b string) {
	if a == b || a == "" || b == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[Edge{a, b}.Canon()] = struct{}{}
	if pa, ok := m.peers[a]; ok {
		pa.Neighbors[b] = struct{}{}
	}
	if pb, ok := m.peers[b]; ok {
		pb.Neighbors[a] = struct{}{}
	}
}

// RemoveEdge removes the edge between two peer IPs and repairs both
// endpoints' neighbor sets.
func (m *NetworkModel) RemoveEdge(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges, Edge{a, b}.Canon())
	if pa, ok := m.peers[a]; ok {
		delete(pa.Neighbors, b)
	}
	if pb, ok := m.peers[b]; ok {
		delete(pb.Neighbors, a)
	}
}

// CleanupStalePeerID removes a superseded telemetry identity from every
// per-(contract, peer) index without touching topology. Called when a
// peer's telemetry identity changes (process restart behind the same
// IP), before the new identity is recorded.
func (m *NetworkModel) CleanupStalePeerID(old string) {
	if old == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeIdentityLocked(old)
}

func (m *NetworkModel) purgeIdentityLocked(ident string) {
	delete(m.lifecycles, ident)
	if ip, ok := m.ipByIdent[ident]; ok {
		delete(m.ipByIdent, ident)
		if m.identByIP[ip] == ident {
			delete(m.identByIP, ip)
		}
	}
	for key, byPeer := range m.contractStates {
		delete(byPeer, ident)
		if len(byPeer) == 0 {
			delete(m.contractStates, key)
		}
	}
	for _, timeline := range m.propagation {
		delete(timeline.PeerFirst, ident)
	}
	for _, sub := range m.subs {
		delete(sub.Subscribers, ident)
		delete(sub.Seeding, ident)
		delete(sub.Tree, ident)
		for sender, targets := range sub.Tree {
			delete(targets, ident)
			if len(targets) == 0 {
				delete(sub.Tree, sender)
			}
		}
	}
}
