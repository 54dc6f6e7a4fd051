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

package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/probeum/probewatch/model"
)

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(3, nil)
	q.Enqueue(Message{Type: "a"})
	q.Enqueue(Message{Type: "b"})
	q.Enqueue(Message{Type: "c"})
	q.Enqueue(Message{Type: "d"}) // must drop "a"

	items := q.Drain()
	assert.Len(t, items, 3)
	assert.Equal(t, "b", items[0].Type)
	assert.Equal(t, "c", items[1].Type)
	assert.Equal(t, "d", items[2].Type)
	assert.Equal(t, int64(1), q.Drops())
}

func TestQueueDrainEmptiesAndResets(t *testing.T) {
	q := NewQueue(10, nil)
	q.Enqueue(Message{Type: "x"})
	first := q.Drain()
	assert.Len(t, first, 1)
	second := q.Drain()
	assert.Empty(t, second)
}

type fakeSink struct {
	broadcasts []Message
	count      int
}

func (f *fakeSink) Broadcast(msg Message) { f.broadcasts = append(f.broadcasts, msg) }
func (f *fakeSink) SessionCount() int     { return f.count }

func TestBatchBufferFlushesOnlyWhenNonEmptyAndHasSessions(t *testing.T) {
	buf := &BatchBuffer{}
	sink := &fakeSink{count: 0}
	buf.Append(model.OutboundEvent{Kind: "put_success"})

	// SessionCount is 0: flush must not broadcast even though the buffer
	// has events, and the events must still be drained so they don't
	// accumulate unbounded while nobody is connected.
	runFlusherTicks(buf, sink)
	assert.Empty(t, buf.swap())
	assert.Empty(t, sink.broadcasts)

	// One session connected and events buffered: exactly one event_batch
	// goes out; later ticks over the now-empty buffer send nothing.
	sink.count = 1
	buf.Append(model.OutboundEvent{Kind: "put_success"})
	runFlusherTicks(buf, sink)
	assert.Len(t, sink.broadcasts, 1)
	assert.Equal(t, "event_batch", sink.broadcasts[0].Type)
}

// runFlusherTicks runs a Flusher over buf for a few flush intervals and
// waits for it to stop.
func runFlusherTicks(buf *BatchBuffer, sink Sink) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() { NewFlusher(buf, sink).Run(stop); close(done) }()
	time.Sleep(3 * FlushInterval)
	close(stop)
	<-done
}
