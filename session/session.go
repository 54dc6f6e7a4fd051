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

// Package session implements admission, the per-client WebSocket
// lifecycle, and control-message dispatch.
package session

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/probeum/probewatch/fanout"
	"github.com/probeum/probewatch/internal/xlog"
)

// wireMessage is the single JSON shape every outbound frame takes: a
// type discriminant plus an arbitrary payload.
type wireMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:",inline,omitempty"`
}

// Session owns one admitted client's socket, outbound queue, and
// dedicated sender goroutine.
type Session struct {
	ID         uuid.UUID
	Conn       *websocket.Conn
	IP         string
	AnonID     string
	SelfIDHash string
	Priority   bool

	queue  *fanout.Queue
	log    *xlog.Logger
	closed int32
	done   chan struct{}
}

func newSession(conn *websocket.Conn, ip, anonID, selfIDHash string, priority bool, log *xlog.Logger) *Session {
	id := uuid.New()
	s := &Session{
		ID:         id,
		Conn:       conn,
		IP:         ip,
		AnonID:     anonID,
		SelfIDHash: selfIDHash,
		Priority:   priority,
		queue:      fanout.NewQueue(fanout.QueueCapacity, log.New("session", id.String())),
		log:        log.New("session", id.String()),
		done:       make(chan struct{}),
	}
	return s
}

// Enqueue non-blockingly queues msg for delivery; the oldest queued
// message is dropped first if the queue is full.
func (s *Session) Enqueue(msg fanout.Message) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return
	}
	s.queue.Enqueue(msg)
}

// SendNow writes msg synchronously, bypassing the queue. Used only for
// the initial state/history send at connect time, per §4.4.
func (s *Session) SendNow(msg fanout.Message) error {
	return s.writeJSON(msg)
}

func (s *Session) writeJSON(msg fanout.Message) error {
	payload, err := marshalEnvelope(msg)
	if err != nil {
		return err
	}
	s.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.Conn.WriteMessage(websocket.TextMessage, payload)
}

func marshalEnvelope(msg fanout.Message) ([]byte, error) {
	// Data is flattened alongside "type" rather than nested, matching
	// the wire shape documented in §6 (a single JSON object per message,
	// "type" plus top-level payload fields).
	dataBytes, err := json.Marshal(msg.Data)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(dataBytes, &fields); err != nil {
		// Non-object payloads (shouldn't occur in practice) fall back to
		// a nested "data" field so nothing is silently dropped.
		return json.Marshal(map[string]interface{}{"type": msg.Type, "data": msg.Data})
	}
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["type"] = msg.Type
	return json.Marshal(fields)
}

// runSender drains the queue every tick and writes to the socket until
// a write errors or the session is closed.
func (s *Session) runSender(tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for _, msg := range s.queue.Drain() {
				if err := s.writeJSON(msg); err != nil {
					s.log.Debug("sender write failed, closing session", "err", err)
					s.Close()
					return
				}
			}
		}
	}
}

// Close marks the session closed, closes the socket, and wakes the
// sender.
func (s *Session) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	close(s.done)
	s.Conn.Close()
}

// Closed reports whether the session has already been torn down.
func (s *Session) Closed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// DropCount reports how many messages this session's queue has dropped.
func (s *Session) DropCount() int64 { return s.queue.Drops() }
