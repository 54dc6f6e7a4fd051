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

package interpret

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/probewatch/identity"
	"github.com/probeum/probewatch/model"
	"github.com/probeum/probewatch/telemetry"
)

func rec(attrs map[string]interface{}, body map[string]interface{}, ts time.Time) telemetry.Record {
	return telemetry.Record{Attributes: attrs, Body: body, Timestamp: ts}
}

func TestInterpretPublicPeerAppearsInModel(t *testing.T) {
	m := model.New()
	now := time.Now()

	r := rec(map[string]interface{}{
		"event_type": "put_success",
		"this_peer":  "peer1@1.2.3.4:30303 (@ 5.0)",
	}, map[string]interface{}{"contract_key": "c1"}, now)

	result := Interpret(m, r, true)
	require.True(t, result.HasEvent)

	p, ok := m.PeerByIP("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, identity.AnonymizeIP("1.2.3.4"), p.AnonID)
}

func TestInterpretPrivateIPNeverAdmitted(t *testing.T) {
	m := model.New()
	now := time.Now()

	r := rec(map[string]interface{}{
		"event_type": "put_success",
		"this_peer":  "peer1@192.168.1.5:30303 (@ 5.0)",
	}, map[string]interface{}{}, now)

	result := Interpret(m, r, true)
	assert.False(t, result.HasEvent)

	_, ok := m.PeerByIP("192.168.1.5")
	assert.False(t, ok, "a private-range peer must never be recorded in the model")
}

func TestInterpretConnectRecordsEdgeBetweenPublicPeers(t *testing.T) {
	m := model.New()
	now := time.Now()

	r := rec(map[string]interface{}{
		"event_type":     "connect",
		"this_peer":      "peer1@1.2.3.4:30303 (@ 5.0)",
		"connected_peer": "peer2@5.6.7.8:30303 (@ 6.0)",
	}, map[string]interface{}{"type": "connect_connected"}, now)

	Interpret(m, r, true)

	p1, ok1 := m.PeerByIP("1.2.3.4")
	require.True(t, ok1)
	_, neighbor := p1.Neighbors["5.6.7.8"]
	assert.True(t, neighbor)
}

func TestInterpretPutLatencyRecordedOnCompletion(t *testing.T) {
	m := model.New()
	start := time.Now()

	reqRec := rec(map[string]interface{}{
		"event_type":     "put_request",
		"transaction_id": "abcdefghijklmnopqrstuvwxyz",
		"this_peer":      "peer1@203.0.113.10:30303 (@ 5.0)",
	}, map[string]interface{}{}, start)
	Interpret(m, reqRec, true)

	doneRec := rec(map[string]interface{}{
		"event_type":     "put_success",
		"transaction_id": "abcdefghijklmnopqrstuvwxyz",
		"this_peer":      "peer1@203.0.113.10:30303 (@ 5.0)",
	}, map[string]interface{}{}, start.Add(50*time.Millisecond))
	Interpret(m, doneRec, true)

	snap := m.GetNetworkState(start.Add(time.Second))
	stats, ok := snap.OpStats["put"]
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Total)
	assert.Greater(t, stats.P50Ms, 0.0)
}
