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
	"sort"
	"time"
)

// PeerView is the client-facing rendering of a live peer.
type PeerView struct {
	IP        string   `json:"ip_hash"`
	Location  float64  `json:"location"`
	Neighbors []string `json:"neighbors"`
	LastSeen  int64    `json:"last_seen"`
}

// ConnectionView is a client-facing edge, emitted only when both
// endpoints are live.
type ConnectionView struct {
	A string `json:"a"`
	B string `json:"b"`
}

// OpStatsView summarizes one operation kind's counters.
type OpStatsView struct {
	Total       int64   `json:"total"`
	SuccessRate float64 `json:"success_rate"`
	P50Ms       float64 `json:"p50_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
}

// SubscriptionView is a client-facing rendering of one contract's
// subscriber set and broadcast tree.
type SubscriptionView struct {
	ContractKey string              `json:"contract_key"`
	Subscribers []string            `json:"subscribers"`
	Tree        map[string][]string `json:"tree"`
}

// ContractStateView is the per-peer content hash for one contract.
type ContractStateView struct {
	Identity  string `json:"identity"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
}

// PropagationView is the client-facing rendering of a propagation
// timeline.
type PropagationView struct {
	ContractKey string `json:"contract_key"`
	Hash        string `json:"hash"`
	FirstSeen   int64  `json:"first_seen"`
	LastSeen    int64  `json:"last_seen"`
	PeerCount   int    `json:"peer_count"`
}

// LifecycleView is a client-facing rendering of a lifecycle record.
type LifecycleView struct {
	Identity  string `json:"identity"`
	Version   string `json:"version"`
	Arch      string `json:"arch"`
	OS        string `json:"os"`
	OSVersion string `json:"os_version"`
	Gateway   bool   `json:"gateway"`
	Startup   int64  `json:"startup"`
	Active    bool   `json:"active"`
}

// NetworkStateSnapshot is the "state" message payload (minus the
// session-specific your_*/gateway_*/priority_token augmentation, which
// the session package adds on top).
type NetworkStateSnapshot struct {
	Peers          []PeerView                    `json:"peers"`
	Connections    []ConnectionView               `json:"connections"`
	Subscriptions  []SubscriptionView             `json:"subscriptions"`
	ContractStates map[string][]ContractStateView `json:"contract_states"`
	OpStats        map[string]OpStatsView          `json:"op_stats"`
	PeerLifecycle  []LifecycleView                 `json:"peer_lifecycle"`
	PeerNames      map[string]string               `json:"peer_names"`
	Transfers      []TransferEvent                 `json:"transfers"`
	Propagation    []PropagationView                `json:"propagation"`
}

// GetNetworkState renders a consistent point-in-time view. Only live
// peers are included; edges require both endpoints live; neighbor
// fan-out is capped at NeighborDisplayCap; contracts and lifecycle
// records are ranked and capped per §4.2.
func (m *NetworkModel) GetNetworkState(now time.Time) NetworkStateSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	live := make(map[string]*Peer)
	for ip, p := range m.peers {
		if p.IsLive(now) {
			live[ip] = p
		}
	}

	snap := NetworkStateSnapshot{
		ContractStates: make(map[string][]ContractStateView),
		OpStats:        make(map[string]OpStatsView),
		PeerNames:      m.names.Snapshot(),
	}

	for ip, p := range live {
		neighbors := make([]string, 0, len(p.Neighbors))
		for n := range p.Neighbors {
			if _, ok := live[n]; ok {
				neighbors = append(neighbors, n)
			}
		}
		sort.Strings(neighbors)
		if len(neighbors) > NeighborDisplayCap {
			neighbors = neighbors[:NeighborDisplayCap]
		}
		snap.Peers = append(snap.Peers, PeerView{
			IP:        ip,
			Location:  p.Location,
			Neighbors: neighbors,
			LastSeen:  p.LastSeen.UnixNano(),
		})
	}
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].IP < snap.Peers[j].IP })

	for e := range m.edges {
		if _, ok := live[e.A]; !ok {
			continue
		}
		if _, ok := live[e.B]; !ok {
			continue
		}
		snap.Connections = append(snap.Connections, ConnectionView{A: e.A, B: e.B})
	}

	type rankedSub struct {
		view   SubscriptionView
		active int
	}
	var ranked []rankedSub
	for key, sub := range m.subs {
		active := 0
		for id := range sub.Subscribers {
			if _, ok := m.ipByIdent[id]; ok {
				if p, ok2 := m.peers[m.ipByIdent[id]]; ok2 && p.IsLive(now) {
					active++
				}
			}
		}
		view := SubscriptionView{ContractKey: key, Tree: make(map[string][]string)}
		for id := range sub.Subscribers {
			view.Subscribers = append(view.Subscribers, id)
		}
		sort.Strings(view.Subscribers)
		for sender, targets := range sub.Tree {
			list := make([]string, 0, len(targets))
			for t := range targets {
				list = append(list, t)
			}
			sort.Strings(list)
			view.Tree[sender] = list
		}
		ranked = append(ranked, rankedSub{view, active})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].active > ranked[j].active })
	if len(ranked) > MaxSnapshotContracts {
		ranked = ranked[:MaxSnapshotContracts]
	}
	for _, r := range ranked {
		snap.Subscriptions = append(snap.Subscriptions, r.view)
	}

	for key, byPeer := range m.contractStates {
		var views []ContractStateView
		for id, e := range byPeer {
			views = append(views, ContractStateView{Identity: id, Hash: e.Hash, Timestamp: e.Timestamp.UnixNano(), Kind: e.Kind})
		}
		sort.Slice(views, func(i, j int) bool { return views[i].Identity < views[j].Identity })
		snap.ContractStates[key] = views
	}

	for op, c := range m.opCounters {
		total := c.requests
		successRate := 0.0
		if total > 0 {
			successRate = 100 * float64(c.successes) / float64(total)
		}
		p50, p95, p99 := percentiles(c.latencies)
		snap.OpStats[op] = OpStatsView{
			Total:       total,
			SuccessRate: successRate,
			P50Ms:       float64(p50.Milliseconds()),
			P95Ms:       float64(p95.Milliseconds()),
			P99Ms:       float64(p99.Milliseconds()),
		}
	}

	type rankedLC struct {
		view       LifecycleView
		backsLive  bool
	}
	var lcs []rankedLC
	for ident, l := range m.lifecycles {
		_, hasIP := m.ipByIdent[ident]
		backsLive := false
		if hasIP {
			if p, ok := m.peers[m.ipByIdent[ident]]; ok {
				backsLive = p.IsLive(now)
			}
		}
		if l.Shutdown != nil && !backsLive {
			continue
		}
		lcs = append(lcs, rankedLC{LifecycleView{
			Identity:  ident,
			Version:   l.Version,
			Arch:      l.Arch,
			OS:        l.OS,
			OSVersion: l.OSVersion,
			Gateway:   l.Gateway,
			Startup:   l.Startup.UnixNano(),
			Active:    l.IsActive(hasIP),
		}, backsLive})
	}
	sort.Slice(lcs, func(i, j int) bool {
		if lcs[i].backsLive != lcs[j].backsLive {
			return lcs[i].backsLive
		}
		return lcs[i].view.Identity < lcs[j].view.Identity
	})
	if len(lcs) > MaxSnapshotLifecycle {
		lcs = lcs[:MaxSnapshotLifecycle]
	}
	for _, l := range lcs {
		snap.PeerLifecycle = append(snap.PeerLifecycle, l.view)
	}

	snap.Transfers = append(snap.Transfers, m.transfers...)

	for key, tl := range m.propagation {
		snap.Propagation = append(snap.Propagation, PropagationView{
			ContractKey: key,
			Hash:        tl.Hash,
			FirstSeen:   tl.FirstSeen.UnixNano(),
			LastSeen:    tl.LastSeen.UnixNano(),
			PeerCount:   len(tl.PeerFirst),
		})
	}
	sort.Slice(snap.Propagation, func(i, j int) bool { return snap.Propagation[i].ContractKey < snap.Propagation[j].ContractKey })

	return snap
}

// percentiles returns p50, p95, p99 over a copy of samples, sorted
// ascending. Fewer than 3 samples still returns a best-effort value
// rather than zeroing out.
func percentiles(samples []time.Duration) (p50, p95, p99 time.Duration) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(p float64) time.Duration {
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}
	return at(0.50), at(0.95), at(0.99)
}
