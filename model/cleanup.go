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

// CleanupResult is what a stale-peer sweep removed, so the fan-out layer
// can emit a single coherent peers_removed broadcast.
type CleanupResult struct {
	AnonIDs     []string
	Identities  []string
	EdgePairs   [][2]string
}

// CleanupStalePeers identifies every peer whose last-seen is older than
// LiveWindow and removes it, and everything it keyed, from every index:
// peers, ip<->identity maps, lifecycle, edges (repairing surviving
// neighbor sets), subscription subscribers/broadcast trees, and
// contract-state/propagation entries. It is invariant-preserving: after
// it returns, no stale peer appears anywhere in the model.
func (m *NetworkModel) CleanupStalePeers(now time.Time) CleanupResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result CleanupResult
	staleIPs := make(map[string]struct{})
	for ip, p := range m.peers {
		if !p.IsLive(now) {
			staleIPs[ip] = struct{}{}
		}
	}
	if len(staleIPs) == 0 {
		return result
	}

	identsByIP := make(map[string][]string)
	for ip := range staleIPs {
		if p := m.peers[ip]; p != nil && p.AnonID != "" {
			result.AnonIDs = append(result.AnonIDs, p.AnonID)
		}
		if ident, ok := m.identByIP[ip]; ok {
			identsByIP[ip] = append(identsByIP[ip], ident)
		}
	}
	// A stale IP may have had more than one telemetry identity across its
	// lifetime (process restarts); ipByIdent->ip is the authoritative map
	// to find all of them.
	for ident, ip := range m.ipByIdent {
		if _, stale := staleIPs[ip]; stale {
			already := false
			for _, existing := range identsByIP[ip] {
				if existing == ident {
					already = true
					break
				}
			}
			if !already {
				identsByIP[ip] = append(identsByIP[ip], ident)
			}
		}
	}
	for _, idents := range identsByIP {
		result.Identities = append(result.Identities, idents...)
	}

	// Remove edges touching stale IPs, repairing surviving neighbors.
	for e := range m.edges {
		_, aStale := staleIPs[e.A]
		_, bStale := staleIPs[e.B]
		if !aStale && !bStale {
			continue
		}
		delete(m.edges, e)
		result.EdgePairs = append(result.EdgePairs, [2]string{e.A, e.B})
		if pa, ok := m.peers[e.A]; ok {
			delete(pa.Neighbors, e.B)
		}
		if pb, ok := m.peers[e.B]; ok {
			delete(pb.Neighbors, e.A)
		}
	}

	// Purge per-identity indexes for every identity ever bound to a stale IP.
	for _, idents := range identsByIP {
		for _, ident := range idents {
			m.purgeIdentityLocked(ident)
		}
	}

	for ip := range staleIPs {
		if p := m.peers[ip]; p != nil {
			delete(m.ipByAnon, p.AnonID)
		}
		delete(m.peers, ip)
		delete(m.identByIP, ip)
	}

	for _, sub := range m.subs {
		if len(sub.Subscribers) == 0 && len(sub.Tree) == 0 && len(sub.Seeding) == 0 {
			delete(m.subs, sub.ContractKey)
		}
	}
	for key, tl := range m.propagation {
		if len(tl.PeerFirst) == 0 {
			delete(m.propagation, key)
		}
	}

	return result
}
