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

// Package interpret converts one telemetry record into a Network Model
// mutation and, optionally, one outbound event. It is a pure function of
// (record, model) given the model's current write-lock ownership: a
// single Interpret call never yields mid-way, matching the serialization
// requirement of §5.
package interpret

import (
	"strings"
	"time"

	"github.com/probeum/probewatch/common"
	"github.com/probeum/probewatch/identity"
	"github.com/probeum/probewatch/model"
	"github.com/probeum/probewatch/telemetry"
)

// otherPeerFields is the ordered probe list for locating the "other"
// peer referenced by a record, after "this_peer" (the emitter).
var otherPeerFields = []string{"requester", "target", "connected_peer", "subscriber", "upstream"}

// addressOnlyFields refresh a known peer's last-seen without creating a
// new record.
var addressOnlyFields = []string{"from_addr", "to_addr", "peer_addr", "this_peer_addr", "from_peer_addr", "connected_peer_addr"}

// Result is the outcome of interpreting one record.
type Result struct {
	Event     *model.OutboundEvent
	HasEvent  bool
}

// Interpret applies one telemetry record to m and returns the outbound
// event it produces, if any. storeHistory controls whether the event
// (when history-eligible) is appended to the bounded history buffer;
// real-time fan-out eligibility is decided separately by the caller via
// model.StreamEligible on the returned event.
func Interpret(m *model.NetworkModel, rec telemetry.Record, storeHistory bool) Result {
	routingKind := rec.EventKind()
	displayKind := routingKind
	if isConnectFamily(routingKind) {
		if t := rec.BodyString("type"); t != "" {
			displayKind = t
		}
	}

	now := rec.Timestamp

	for _, f := range addressOnlyFields {
		if raw := rec.AttrString(f); raw != "" {
			if ref, err := identity.ParsePeerString(raw); err == nil {
				m.Touch(ref.IP, now)
			}
		}
	}

	emitterIdent := emitterIdentity(rec)
	if emitterIdent != "" {
		m.TouchByIdentity(emitterIdent, now)
	}

	var emitter *model.Peer
	if raw := rec.AttrString("this_peer"); raw != "" {
		if ref, err := identity.ParsePeerString(raw); err == nil && identity.IsPublic(ref.IP) {
			if existing, ok := m.PeerByIP(ref.IP); ok && existing.Identity != "" && existing.Identity != ref.ID {
				m.CleanupStalePeerID(existing.Identity)
			}
			p := m.RecordPeer(ref.IP, ref.Location, ref.ID, now)
			emitter = p
		}
	}

	contractKey := rec.BodyString("contract_key")

	switch {
	case routingKind == "connect" || routingKind == "connected" || routingKind == "connect_connected":
		handleConnect(m, rec, now)
	case routingKind == "disconnect":
		handleDisconnect(m, rec, now)
	}

	handleOperationLifecycle(m, rec, routingKind, contractKey, now)
	handleContractState(m, rec, routingKind, contractKey, emitterIdent, now)
	handlePropagation(m, rec, routingKind, contractKey, emitterIdent, now)
	handleSubscription(m, rec, routingKind, contractKey, emitterIdent, now)
	handleLifecycle(m, rec, routingKind, emitterIdent, now)
	handleTransfer(m, rec, routingKind, now)
	handleTransaction(m, rec, routingKind, contractKey, now)

	if emitter == nil {
		return Result{}
	}

	ev := buildOutboundEvent(rec, routingKind, displayKind, contractKey, emitter, now)
	if storeHistory {
		m.AppendHistory(ev)
	}
	return Result{Event: &ev, HasEvent: true}
}

func isConnectFamily(routingKind string) bool {
	switch routingKind {
	case "connect", "connected", "connect_connected", "disconnect":
		return true
	default:
		return false
	}
}

// emitterIdentity extracts the telemetry identity of the emitting peer
// from this_peer, without requiring a public-IP check (used to refresh
// last-seen even for peers not otherwise admitted this call).
func emitterIdentity(rec telemetry.Record) string {
	if raw := rec.AttrString("this_peer"); raw != "" {
		if ref, err := identity.ParsePeerString(raw); err == nil {
			return ref.ID
		}
	}
	return ""
}

// otherPeer returns the first matching field from the ordered probe
// list.
func otherPeer(rec telemetry.Record) (identity.PeerRef, bool) {
	for _, f := range otherPeerFields {
		if raw := rec.AttrString(f); raw != "" {
			if ref, err := identity.ParsePeerString(raw); err == nil {
				return ref, true
			}
		}
	}
	return identity.PeerRef{}, false
}

func handleConnect(m *model.NetworkModel, rec telemetry.Record, now time.Time) {
	thisRaw := rec.AttrString("this_peer")
	if thisRaw == "" {
		return
	}
	thisRef, err := identity.ParsePeerString(thisRaw)
	if err != nil || !identity.IsPublic(thisRef.IP) {
		return
	}
	other, ok := otherPeer(rec)
	if !ok || !identity.IsPublic(other.IP) {
		return
	}
	m.RecordPeer(other.IP, other.Location, other.ID, now)
	m.RecordEdge(thisRef.IP, other.IP)
}

func handleDisconnect(m *model.NetworkModel, rec telemetry.Record, now time.Time) {
	thisRaw := rec.AttrString("this_peer")
	fromAddr := rec.AttrString("from_peer_addr")
	if thisRaw == "" || fromAddr == "" {
		return
	}
	thisRef, err := identity.ParsePeerString(thisRaw)
	if err != nil {
		return
	}
	otherRef, err := identity.ParsePeerString(fromAddr)
	if err != nil {
		return
	}
	m.RemoveEdge(thisRef.IP, otherRef.IP)
}

func handleOperationLifecycle(m *model.NetworkModel, rec telemetry.Record, routingKind, contractKey string, now time.Time) {
	txID := rec.AttrString("transaction_id")
	op := common.OperationKindFromPrefix(routingKind)
	switch {
	case strings.HasSuffix(routingKind, "_request"):
		if common.ValidTransactionID(txID) {
			m.RecordPendingOp(txID, op, now)
		}
	case strings.HasSuffix(routingKind, "_success"), routingKind == "get_not_found":
		success := routingKind != "get_not_found"
		if common.ValidTransactionID(txID) {
			m.CompletePendingOp(txID, op, now, success)
		}
	case routingKind == "update_broadcast_emitted" || routingKind == "broadcast_emitted":
		m.IncrementBroadcastCounter(common.OpBroadcast)
	}
}

func handleContractState(m *model.NetworkModel, rec telemetry.Record, routingKind, contractKey, ident string, now time.Time) {
	if contractKey == "" || ident == "" {
		return
	}
	switch routingKind {
	case "put_success", "get_success", "update_success", "broadcast_emitted",
		"update_broadcast_received", "update_broadcast_applied":
	default:
		return
	}
	hash := preferredHash(rec, routingKind)
	if hash == "" {
		return
	}
	m.UpdateContractState(contractKey, ident, hash, routingKind, now)
}

// preferredHash applies the before/after preference: *_after wins when
// both are present, then *_before, then state_hash. It gives no kind a
// precedence over another: between update_broadcast_received and
// update_broadcast_applied for the same (contract, peer), the observation
// with the later timestamp is kept by UpdateContractState.
func preferredHash(rec telemetry.Record, routingKind string) string {
	before := rec.BodyString("state_hash_before")
	after := rec.BodyString("state_hash_after")
	if after != "" {
		return after
	}
	if before != "" {
		return before
	}
	return rec.BodyString("state_hash")
}

func handlePropagation(m *model.NetworkModel, rec telemetry.Record, routingKind, contractKey, ident string, now time.Time) {
	if contractKey == "" || ident == "" {
		return
	}
	switch routingKind {
	case "update_success", "update_broadcast_applied", "update_broadcast_emitted":
	default:
		return
	}
	hash := preferredHash(rec, routingKind)
	if hash == "" {
		return
	}
	m.TrackPropagation(contractKey, ident, hash, now)
}

func handleSubscription(m *model.NetworkModel, rec telemetry.Record, routingKind, contractKey, ident string, now time.Time) {
	if contractKey == "" {
		return
	}
	switch routingKind {
	case "seeding_started":
		m.SeedingUpdate(contractKey, ident, func(s *model.SeedingState) { s.IsSeeding = true })
	case "seeding_stopped":
		m.SeedingUpdate(contractKey, ident, func(s *model.SeedingState) { s.IsSeeding = false })
	case "downstream_added":
		if down := rec.BodyString("downstream"); down != "" {
			m.SeedingUpdate(contractKey, ident, func(s *model.SeedingState) {
				s.Downstream = append(s.Downstream, down)
				s.DownstreamCount = len(s.Downstream)
			})
		}
	case "downstream_removed":
		if down := rec.BodyString("downstream"); down != "" {
			m.SeedingUpdate(contractKey, ident, func(s *model.SeedingState) {
				s.Downstream = removeString(s.Downstream, down)
				s.DownstreamCount = len(s.Downstream)
			})
		}
	case "upstream_set":
		m.SeedingUpdate(contractKey, ident, func(s *model.SeedingState) { s.Upstream = rec.BodyString("upstream") })
	case "unsubscribed":
		m.SeedingUpdate(contractKey, ident, func(s *model.SeedingState) { s.IsSeeding = false })
	case "subscription_state":
		if count, ok := rec.Body["downstream_count"].(float64); ok {
			m.SeedingUpdate(contractKey, ident, func(s *model.SeedingState) { s.DownstreamCount = int(count) })
		}
	case "subscribed", "subscribe_success":
		m.SubscriberAdd(contractKey, ident)
	}

	if routingKind == "broadcast_emitted" || routingKind == "update_broadcast_emitted" {
		sender := ident
		if ref, err := identity.ParsePeerString(rec.BodyString("target")); err == nil && sender != "" {
			m.BroadcastTreeAdd(contractKey, sender, ref.ID)
		}
	}
}

func removeString(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func handleLifecycle(m *model.NetworkModel, rec telemetry.Record, routingKind, ident string, now time.Time) {
	if ident == "" {
		return
	}
	switch routingKind {
	case "peer_startup", "startup":
		m.RegisterLifecycle(ident, func(l *model.Lifecycle) {
			l.Version = rec.BodyString("version")
			l.Arch = rec.BodyString("arch")
			l.OS = rec.BodyString("os")
			l.OSVersion = rec.BodyString("os_version")
			l.Gateway = rec.BodyString("gateway") == "true"
			l.Startup = now
		})
	case "peer_shutdown", "shutdown":
		graceful := rec.BodyString("graceful") == "true"
		m.RegisterLifecycle(ident, func(l *model.Lifecycle) {
			t := now
			l.Shutdown = &t
			l.Graceful = &graceful
			l.ShutdownNote = rec.BodyString("reason")
		})
	}
}

func handleTransfer(m *model.NetworkModel, rec telemetry.Record, routingKind string, now time.Time) {
	if routingKind != "transfer_complete" && routingKind != "transfer_finished" {
		return
	}
	m.AppendTransfer(model.TransferEvent{
		Timestamp:  now,
		Direction:  rec.BodyString("direction"),
		Bytes:      int64(bodyFloat(rec, "bytes")),
		Throughput: bodyFloat(rec, "throughput"),
		Window:     int64(bodyFloat(rec, "window")),
		RTT:        time.Duration(bodyFloat(rec, "rtt_ms")) * time.Millisecond,
		Slowdowns:  int(bodyFloat(rec, "slowdowns")),
		Timeouts:   int(bodyFloat(rec, "timeouts")),
	})
}

func bodyFloat(rec telemetry.Record, key string) float64 {
	v, ok := rec.Body[key]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	default:
		return 0
	}
}

func handleTransaction(m *model.NetworkModel, rec telemetry.Record, routingKind, contractKey string, now time.Time) {
	txID := rec.AttrString("transaction_id")
	if !common.ValidTransactionID(txID) {
		return
	}
	op := common.OperationKindFromPrefix(routingKind)
	if !op.Retained() {
		return
	}
	terminal := false
	status := common.StatusPending
	switch {
	case strings.HasSuffix(routingKind, "_success"):
		terminal = true
		status = common.StatusSuccess
	case routingKind == "get_not_found":
		terminal = true
		status = common.StatusNotFound
	case routingKind == "broadcast_emitted" || routingKind == "update_broadcast_emitted":
		terminal = true
		status = common.StatusComplete
	}
	emitterIdent := emitterIdentity(rec)
	m.AccrueTransaction(txID, op, contractKey, routingKind, emitterIdent, now, terminal, status)
}

func buildOutboundEvent(rec telemetry.Record, routingKind, displayKind, contractKey string, emitter *model.Peer, now time.Time) model.OutboundEvent {
	ev := model.OutboundEvent{
		Timestamp:  now,
		Kind:       displayKind,
		PeerID:     emitter.AnonID,
		SelfIDHash: emitter.SelfIDHash,
		Location:   emitter.Location,
		TimeString: now.Format(time.RFC3339),
	}
	if contractKey != "" {
		ev.ContractKeyFull = contractKey
		ev.ContractKeyShort = shortKey(contractKey)
	}
	if other, ok := otherPeer(rec); ok {
		ev.HasFromTo = true
		ev.FromPeer = emitter.AnonID
		ev.FromLocation = emitter.Location
		ev.ToPeer = identity.AnonymizeIP(other.IP)
		ev.ToLocation = other.Location
	}
	switch routingKind {
	case "connect", "connected", "connect_connected":
		ev.Connection = true
	case "disconnect":
		ev.Disconnection = true
	}
	ev.StateHashBefore = rec.BodyString("state_hash_before")
	ev.StateHashAfter = rec.BodyString("state_hash_after")
	ev.TransactionID = rec.AttrString("transaction_id")
	return ev
}

func shortKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
