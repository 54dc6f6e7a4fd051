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

// Package tail follows the telemetry log, robust to rotation, and hands
// each parsed record to a callback.
package tail

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/probeum/probewatch/internal/xlog"
	"github.com/probeum/probewatch/telemetry"
)

// Handler is called once per parsed record. storeHistory tells the
// interpreter whether the record is eligible for the bounded history
// buffer (true for both live-tail and cold-start replay; cold start
// additionally suppresses real-time broadcast at the caller).
type Handler func(rec telemetry.Record, storeHistory bool)

// Tailer follows path, re-opening on rotation (inode change) or deletion.
type Tailer struct {
	path         string
	log          *xlog.Logger
	lastRecordAt int64 // unix nanos, atomic
}

// New returns a Tailer for path.
func New(path string) *Tailer {
	return &Tailer{path: path, log: xlog.Root().New("component", "tail")}
}

// LastRecordAge reports how long ago the most recent record was
// parsed, or false if none have been seen yet. Used by the /healthz
// handler to detect a wedged or abandoned log source.
func (t *Tailer) LastRecordAge() (time.Duration, bool) {
	ts := atomic.LoadInt64(&t.lastRecordAt)
	if ts == 0 {
		return 0, false
	}
	return time.Since(time.Unix(0, ts)), true
}

// Run opens path (polling every second while absent), seeks to end, and
// tails it line by line until ctx is canceled. Parse errors on a single
// line are logged and skipped. Rotation is detected both by an inode
// mismatch on each re-stat and, faster on platforms where it is
// supported, by a notify watch on the log file's path — the poll loop
// remains the correctness baseline; notify only shortens average
// detection latency and a missed/coalesced notify event never stalls
// the tail.
func (t *Tailer) Run(ctx context.Context, handle Handler) {
	events := make(chan notify.EventInfo, 8)
	if err := notify.Watch(t.path, events, notify.Rename, notify.Remove, notify.Create); err == nil {
		defer notify.Stop(events)
	}

	for {
		if ctx.Err() != nil {
			return
		}
		f, inode, err := openAtEnd(t.path)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			case <-events:
			}
			continue
		}
		t.tailOpenFile(ctx, f, inode, events, handle)
	}
}

func (t *Tailer) tailOpenFile(ctx context.Context, f *os.File, inode uint64, events <-chan notify.EventInfo, handle Handler) {
	defer f.Close()
	r := bufio.NewReader(f)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		info, err := os.Stat(t.path)
		if err != nil || !sameFile(info, inode) {
			return // rotated or deleted; outer loop re-opens
		}

		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return
		}
		if line == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			case <-events:
			}
			continue
		}
		recs, err := telemetry.ParseLine([]byte(line))
		if err != nil {
			t.log.Debug("malformed telemetry line", "err", err)
			continue
		}
		atomic.StoreInt64(&t.lastRecordAt, time.Now().UnixNano())
		for _, rec := range recs {
			handle(rec, true)
		}
	}
}
