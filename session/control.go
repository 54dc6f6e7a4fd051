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
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/probeum/probewatch/fanout"
	"github.com/probeum/probewatch/moderation"
)

// controlMessage is the shape of every inbound frame a client may send.
type controlMessage struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// readLoop reads control frames from sess until the socket closes,
// dispatching each to its handler. It owns the connection's read side
// for the session's lifetime.
func (mgr *Manager) readLoop(sess *Session) {
	defer mgr.Disconnect(sess)
	sess.Conn.SetReadLimit(4096)
	for {
		_, data, err := sess.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				mgr.log.Debug("session read error", "id", sess.ID, "err", err)
			}
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "set_peer_name":
			mgr.handleSetPeerName(sess, msg.Name)
		}
	}
}

// handleSetPeerName applies the rolling-hour rate limit, runs the name
// through the moderation Sanitizer, and either broadcasts the accepted
// change or replies with a rejection reason, per §4.6.
func (mgr *Manager) handleSetPeerName(sess *Session, requested string) {
	now := time.Now()
	allowed, retryAfter := mgr.model.Names().AllowChange(sess.SelfIDHash, now)
	if !allowed {
		minutes := int64(retryAfter / time.Minute)
		if retryAfter%time.Minute != 0 {
			minutes++
		}
		sess.Enqueue(fanout.Message{Type: "name_set_result", Data: map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("Too many changes. Try again in %d min", minutes),
		}})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sanitized, reason, rejected := mgr.san.Sanitize(ctx, requested)
	if rejected {
		sess.Enqueue(fanout.Message{Type: "name_set_result", Data: map[string]interface{}{
			"success": false,
			"error":   moderation.HumanReason(reason),
		}})
		return
	}

	mgr.model.Names().Set(sess.SelfIDHash, sanitized, now)
	sess.Enqueue(fanout.Message{Type: "name_set_result", Data: map[string]interface{}{
		"success": true,
		"name":    sanitized,
	}})
	mgr.BroadcastExcept(fanout.Message{Type: "peer_name_update", Data: map[string]interface{}{
		"ip_hash": sess.SelfIDHash,
		"name":    sanitized,
	}}, sess.ID.String())
}
