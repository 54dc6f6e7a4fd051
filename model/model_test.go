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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPeerCreatesAndUpdates(t *testing.T) {
	m := New()
	now := time.Now()

	p := m.RecordPeer("203.0.113.5", 12.5, "ident-a", now)
	require.NotNil(t, p)
	assert.Equal(t, "203.0.113.5", p.IP)
	assert.Equal(t, now, p.FirstSeen)

	later := now.Add(time.Minute)
	p2 := m.RecordPeer("203.0.113.5", 13.0, "ident-a", later)
	assert.Equal(t, p.FirstSeen, p2.FirstSeen, "first-seen must not move on update")
	assert.Equal(t, later, p2.LastSeen)
	assert.Equal(t, 13.0, p2.Location)
}

func TestRecordEdgeSymmetricAndCanonical(t *testing.T) {
	m := New()
	now := time.Now()
	m.RecordPeer("1.1.1.1", 0, "a", now)
	m.RecordPeer("2.2.2.2", 0, "b", now)
	m.RecordEdge("2.2.2.2", "1.1.1.1")

	pa, _ := m.PeerByIP("1.1.1.1")
	pb, _ := m.PeerByIP("2.2.2.2")
	_, aHasB := pa.Neighbors["2.2.2.2"]
	_, bHasA := pb.Neighbors["1.1.1.1"]
	assert.True(t, aHasB)
	assert.True(t, bHasA)
}

func TestCleanupStalePeersRemovesEverywhere(t *testing.T) {
	m := New()
	now := time.Now()
	m.RecordPeer("9.9.9.9", 1, "stale-ident", now.Add(-2*LiveWindow))
	m.RecordPeer("8.8.8.8", 1, "fresh-ident", now)
	m.RecordEdge("9.9.9.9", "8.8.8.8")
	m.SubscriberAdd("contract-a", "stale-ident")
	m.UpdateContractState("contract-a", "stale-ident", "hash1", "put_success", now.Add(-2*LiveWindow))

	result := m.CleanupStalePeers(now)
	assert.Contains(t, result.Identities, "stale-ident")

	_, ok := m.PeerByIP("9.9.9.9")
	assert.False(t, ok)

	pb, ok := m.PeerByIP("8.8.8.8")
	require.True(t, ok)
	_, stillNeighbor := pb.Neighbors["9.9.9.9"]
	assert.False(t, stillNeighbor)

	snap := m.GetNetworkState(now)
	for _, cs := range snap.ContractStates["contract-a"] {
		assert.NotEqual(t, "stale-ident", cs.Identity)
	}
}

func TestAccrueTransactionOnlyRetainsRetainedOps(t *testing.T) {
	m := New()
	now := time.Now()
	m.AccrueTransaction("tx-connect", "connect", "", "connect", "p1", now, true, "complete")
	snap := m.GetHistorySnapshot()
	assert.Empty(t, snap.Transactions, "non-retained op kinds must never appear in the transaction log")
}

func TestAppendHistoryPrunesByAge(t *testing.T) {
	m := New()
	old := time.Now().Add(-3 * MaxHistoryAge)
	m.AppendHistory(OutboundEvent{Timestamp: old, Kind: "put_success"})
	m.AppendHistory(OutboundEvent{Timestamp: time.Now(), Kind: "put_success"})

	snap := m.GetHistorySnapshot()
	for _, ev := range snap.Events {
		assert.False(t, ev.Timestamp.Equal(old), "events older than MaxHistoryAge must be pruned")
	}
}

func TestNameMapRateLimit(t *testing.T) {
	nm := NewNameMap()
	now := time.Now()
	for i := 0; i < NameRateLimit; i++ {
		allowed, _ := nm.AllowChange("self-a", now)
		require.True(t, allowed)
		nm.Set("self-a", "name", now)
	}
	allowed, retry := nm.AllowChange("self-a", now)
	assert.False(t, allowed)
	assert.Greater(t, retry, time.Duration(0))

	later := now.Add(NameRateWindow + time.Second)
	allowed, _ = nm.AllowChange("self-a", later)
	assert.True(t, allowed, "budget must replenish once the rolling window rolls past")
}

// TestGetNetworkStateOnlyIncludesLivePeerViews uses go-cmp rather than
// testify's assert.Equal so the ordering/content check isn't fooled by
// LastSeen, a field that legitimately differs run to run.
func TestGetNetworkStateOnlyIncludesLivePeerViews(t *testing.T) {
	m := New()
	now := time.Now()
	m.RecordPeer("1.1.1.1", 1.0, "a", now)
	m.RecordPeer("2.2.2.2", 2.0, "b", now.Add(-2*LiveWindow))

	snap := m.GetNetworkState(now)
	want := []PeerView{{IP: "1.1.1.1", Location: 1.0, Neighbors: []string{}}}

	if diff := cmp.Diff(want, snap.Peers, cmpopts.IgnoreFields(PeerView{}, "LastSeen")); diff != "" {
		t.Errorf("live peer views mismatch (-want +got):\n%s", diff)
	}
}
