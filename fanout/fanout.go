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

// Package fanout is the load-shedding primitive between the interpreter
// and many concurrent WebSocket sessions: a shared batch buffer flushed
// on a fixed tick, and a per-session bounded queue with drop-oldest
// backpressure.
package fanout

import (
	"sync"
	"time"

	"github.com/probeum/probewatch/internal/xlog"
	"github.com/probeum/probewatch/model"
)

// QueueCapacity is the bound on a session's outbound queue.
const QueueCapacity = 100

// FlushInterval is how often the batch buffer is swapped out and sent.
const FlushInterval = 200 * time.Millisecond

// Message is one outbound wire message, already shaped for the session
// layer to marshal.
type Message struct {
	Type string
	Data interface{}
}

// Queue is a bounded, single-writer-many-drain message queue with
// drop-oldest backpressure. Enqueue never blocks: when full, the oldest
// queued message is discarded before the new one is appended.
type Queue struct {
	mu      sync.Mutex
	items   []Message
	cap     int
	drops   int64
	log     *xlog.Logger
	onDrop  func(total int64)
}

// NewQueue returns an empty queue with the given capacity.
func NewQueue(capacity int, log *xlog.Logger) *Queue {
	return &Queue{cap: capacity, log: log}
}

// Enqueue appends msg, dropping the oldest queued message first if the
// queue is already at capacity.
func (q *Queue) Enqueue(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		q.drops++
		if q.drops%50 == 0 && q.log != nil {
			q.log.Warn("session queue dropping messages", "total_drops", q.drops)
		}
	}
	q.items = append(q.items, msg)
}

// Drain removes and returns every currently queued message, in order.
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Drops returns the total number of messages dropped so far.
func (q *Queue) Drops() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}

// Sink receives a batch of events to fan out to every connected session.
type Sink interface {
	Broadcast(msg Message)
	SessionCount() int
}

// BatchBuffer accumulates outbound events between flush ticks under a
// mutex (the one piece of shared state that must survive a yield point),
// matching §4.4 / §5.
type BatchBuffer struct {
	mu     sync.Mutex
	events []model.OutboundEvent
}

// Append adds ev to the pending batch.
func (b *BatchBuffer) Append(ev model.OutboundEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *BatchBuffer) swap() []model.OutboundEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.events
	b.events = nil
	return events
}

// Flusher periodically swaps BatchBuffer out and, if non-empty and at
// least one session is connected, emits a single event_batch message.
type Flusher struct {
	buf  *BatchBuffer
	sink Sink
}

// NewFlusher returns a Flusher for buf, broadcasting through sink.
func NewFlusher(buf *BatchBuffer, sink Sink) *Flusher {
	return &Flusher{buf: buf, sink: sink}
}

// Run ticks every FlushInterval until stop is closed.
func (fl *Flusher) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			events := fl.buf.swap()
			if len(events) == 0 {
				continue
			}
			if fl.sink.SessionCount() == 0 {
				continue
			}
			fl.sink.Broadcast(Message{Type: "event_batch", Data: map[string]interface{}{"events": events}})
		}
	}
}
