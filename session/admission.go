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

package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/gorilla/websocket"

	"github.com/probeum/probewatch/fanout"
	"github.com/probeum/probewatch/identity"
	"github.com/probeum/probewatch/internal/xlog"
	"github.com/probeum/probewatch/metrics"
	"github.com/probeum/probewatch/model"
	"github.com/probeum/probewatch/moderation"
)

// snapshotCacheTTL bounds how stale a cached network-state snapshot may
// be before a reconnect storm forces a fresh GetNetworkState call rather
// than all piling onto the model's read lock at once.
const snapshotCacheTTL = 500 * time.Millisecond

// snapshotCacheBytes sizes the fastcache instance backing the shared
// state-snapshot cache; the snapshot is at most a few hundred KB even
// for a large network, so this comfortably holds several generations.
const snapshotCacheBytes = 8 * 1024 * 1024

var stateCacheKey = []byte("state")

type cachedSnapshot struct {
	At       int64
	Snapshot model.NetworkStateSnapshot
}

// Capacity is the total number of concurrently admitted sessions.
const Capacity = 300

// ReservedPriority is the slice of Capacity held back for priority
// connections: a non-priority connection is only admitted while the
// total stays below Capacity-ReservedPriority.
const ReservedPriority = 50

// PriorityThreshold is the count at or above which only priority
// connections are admitted.
const PriorityThreshold = Capacity - ReservedPriority

// SenderTick is how often each session's sender goroutine drains its
// queue.
const SenderTick = 150 * time.Millisecond

// CloseCapacityFull is the WebSocket close code ("Try Again Later")
// sent to a connection rejected by the capacity admission check.
const CloseCapacityFull = 1013

// Config configures a Manager.
type Config struct {
	GatewayIPs    []string // peer IPs treated as the overlay's bootstrap gateways
	GatewayAnon   []string // corresponding long anonymized peer ids, parallel to GatewayIPs
	GatewayIPHash []string // corresponding short self-id hashes, parallel to GatewayIPs
	TrustProxy    bool     // honor X-Forwarded-For when extracting the client IP
}

// Manager owns every admitted Session, enforces capacity admission, and
// implements fanout.Sink so the batch flusher can broadcast through it.
type Manager struct {
	cfg   Config
	model *model.NetworkModel
	san   *moderation.Sanitizer
	reg   *metrics.Registry
	log   *xlog.Logger

	upgrader websocket.Upgrader

	mu            sync.RWMutex
	sessions      map[string]*Session // keyed by Session.ID.String()
	priorityCount int

	tokMu  sync.Mutex
	tokens map[string]time.Time // issued priority tokens -> issue time

	snapCache *fastcache.Cache
}

var _ fanout.Sink = (*Manager)(nil)

// NewManager returns a Manager ready to admit connections.
func NewManager(cfg Config, nm *model.NetworkModel, san *moderation.Sanitizer, reg *metrics.Registry) *Manager {
	return &Manager{
		cfg:      cfg,
		model:    nm,
		san:      san,
		reg:      reg,
		log:      xlog.Root().New("component", "session"),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		sessions:  make(map[string]*Session),
		tokens:    make(map[string]time.Time),
		snapCache: fastcache.New(snapshotCacheBytes),
	}
}

// cachedState returns the current network-state snapshot, served from
// the shared fastcache entry when it is fresh enough. This keeps a burst
// of simultaneous reconnects (e.g. right after a server restart) from
// each recomputing and re-marshaling the full snapshot under the
// model's read lock.
func (mgr *Manager) cachedState(now time.Time) model.NetworkStateSnapshot {
	if raw, ok := mgr.snapCache.HasGet(nil, stateCacheKey); ok {
		var cached cachedSnapshot
		if err := json.Unmarshal(raw, &cached); err == nil && now.Sub(time.Unix(0, cached.At)) < snapshotCacheTTL {
			return cached.Snapshot
		}
	}
	snap := mgr.model.GetNetworkState(now)
	if blob, err := json.Marshal(cachedSnapshot{At: now.UnixNano(), Snapshot: snap}); err == nil {
		mgr.snapCache.Set(stateCacheKey, blob)
	}
	return snap
}

// ClientIP extracts the connecting peer's address, preferring the
// first X-Forwarded-For hop when TrustProxy is set and the header is
// present, falling back to the TCP remote address otherwise.
func (mgr *Manager) ClientIP(r *http.Request) string {
	if mgr.cfg.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IssuePriorityToken mints a fresh 16-hex-character priority token and
// remembers it so a subsequent connection can redeem it. Tokens are
// one-shot: redeemToken consumes the entry it matches.
func (mgr *Manager) IssuePriorityToken() string {
	var buf [8]byte
	rand.Read(buf[:])
	tok := hex.EncodeToString(buf[:])
	mgr.tokMu.Lock()
	mgr.tokens[tok] = time.Now()
	mgr.tokMu.Unlock()
	return tok
}

func (mgr *Manager) redeemToken(tok string) bool {
	if len(tok) != 16 {
		return false
	}
	mgr.tokMu.Lock()
	defer mgr.tokMu.Unlock()
	if _, ok := mgr.tokens[tok]; ok {
		delete(mgr.tokens, tok)
		return true
	}
	return false
}

// isPriority reports whether a connecting client qualifies for the
// reserved priority slice: it redeemed a freshly issued priority token,
// or its IP is already a known peer in the network model, or its IP is
// one of the configured gateway IPs.
func (mgr *Manager) isPriority(r *http.Request, ip string) bool {
	if tok := r.URL.Query().Get("token"); tok != "" && mgr.redeemToken(tok) {
		return true
	}
	if _, ok := mgr.model.PeerByIP(ip); ok {
		return true
	}
	for _, g := range mgr.cfg.GatewayIPs {
		if g == ip {
			return true
		}
	}
	return false
}

// admit reserves a slot for a connection of the given priority, or
// reports false if the process is at capacity for that class.
func (mgr *Manager) admit(priority bool) bool {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	total := len(mgr.sessions)
	if priority {
		return total < Capacity
	}
	return total < PriorityThreshold
}

// SessionCount returns the number of currently admitted sessions.
func (mgr *Manager) SessionCount() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.sessions)
}

// Broadcast enqueues msg onto every admitted session's outbound queue.
func (mgr *Manager) Broadcast(msg fanout.Message) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	for _, s := range mgr.sessions {
		s.Enqueue(msg)
	}
}

// BroadcastExcept enqueues msg onto every admitted session except one,
// used so a peer's own name-change confirmation doesn't arrive twice.
func (mgr *Manager) BroadcastExcept(msg fanout.Message, exceptID string) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	for id, s := range mgr.sessions {
		if id == exceptID {
			continue
		}
		s.Enqueue(msg)
	}
}

// HandleConnect upgrades r to a WebSocket connection, applies the
// capacity admission check, and if admitted registers and starts a
// Session. On rejection the connection is upgraded and immediately closed
// with CloseCapacityFull.
func (mgr *Manager) HandleConnect(w http.ResponseWriter, r *http.Request) {
	ip := mgr.ClientIP(r)
	priority := mgr.isPriority(r, ip)
	if !mgr.admit(priority) {
		mgr.reg.Inc("sessions_rejected_total", 1)
		conn, err := mgr.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCapacityFull, "server at capacity"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	conn, err := mgr.upgrader.Upgrade(w, r, nil)
	if err != nil {
		mgr.log.Debug("websocket upgrade failed", "err", err, "remote", ip)
		return
	}

	mgr.mu.Lock()
	if (priority && len(mgr.sessions) >= Capacity) || (!priority && len(mgr.sessions) >= PriorityThreshold) {
		mgr.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCapacityFull, "server at capacity"),
			time.Now().Add(time.Second))
		conn.Close()
		mgr.reg.Inc("sessions_rejected_total", 1)
		return
	}

	anonID := identity.AnonymizeIP(ip)
	selfIDHash := identity.SelfIDHash(ip)
	sess := newSession(conn, ip, anonID, selfIDHash, priority, mgr.log)
	mgr.sessions[sess.ID.String()] = sess
	if priority {
		mgr.priorityCount++
	}
	mgr.mu.Unlock()

	mgr.reg.Set("sessions_active", int64(mgr.SessionCount()))
	mgr.log.Info("session admitted", "id", sess.ID, "ip_hash", anonID, "priority", priority)

	if err := mgr.sendInitial(sess); err != nil {
		mgr.log.Debug("initial send failed, dropping session", "err", err)
		mgr.Disconnect(sess)
		return
	}

	go mgr.readLoop(sess)
	go sess.runSender(SenderTick)
}

// sendInitial synchronously writes the state and history messages,
// augmented with the connecting session's own identity and the
// configured gateway's, per §4.4.
func (mgr *Manager) sendInitial(sess *Session) error {
	now := time.Now()
	state := mgr.cachedState(now)
	name, _ := mgr.model.Names().Get(sess.SelfIDHash)

	augmented := map[string]interface{}{
		"peers":           state.Peers,
		"connections":     state.Connections,
		"subscriptions":   state.Subscriptions,
		"contract_states": state.ContractStates,
		"op_stats":        state.OpStats,
		"peer_lifecycle":  state.PeerLifecycle,
		"peer_names":      state.PeerNames,
		"transfers":       state.Transfers,
		"propagation":     state.Propagation,
		"your_ip_hash":    sess.SelfIDHash,
		"your_peer_id":    sess.AnonID,
		"you_are_peer":    false,
		"your_name":       name,
		"priority_token":  mgr.IssuePriorityToken(),
	}
	if p, ok := mgr.model.PeerByIP(sess.IP); ok {
		augmented["you_are_peer"] = true
		augmented["your_ip_hash"] = p.SelfIDHash
		augmented["your_peer_id"] = p.AnonID
	}
	if len(mgr.cfg.GatewayAnon) > 0 {
		augmented["gateway_peer_id"] = mgr.cfg.GatewayAnon[0]
	}
	if len(mgr.cfg.GatewayIPHash) > 0 {
		augmented["gateway_ip_hash"] = mgr.cfg.GatewayIPHash[0]
	}

	if err := sess.SendNow(fanout.Message{Type: "state", Data: augmented}); err != nil {
		return err
	}
	history := mgr.model.GetHistorySnapshot()
	return sess.SendNow(fanout.Message{Type: "history", Data: history})
}

// Disconnect removes a session from the registry and tears it down.
func (mgr *Manager) Disconnect(sess *Session) {
	mgr.mu.Lock()
	if _, ok := mgr.sessions[sess.ID.String()]; ok {
		delete(mgr.sessions, sess.ID.String())
		if sess.Priority {
			mgr.priorityCount--
		}
	}
	mgr.mu.Unlock()
	sess.Close()
	mgr.reg.Set("sessions_active", int64(mgr.SessionCount()))
	mgr.log.Info("session closed", "id", sess.ID, "drops", sess.DropCount())
}

// Shutdown closes every admitted session, draining nothing further.
func (mgr *Manager) Shutdown() {
	mgr.mu.Lock()
	sessions := make([]*Session, 0, len(mgr.sessions))
	for _, s := range mgr.sessions {
		sessions = append(sessions, s)
	}
	mgr.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
