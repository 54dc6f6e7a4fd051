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
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// NameRateLimit is the maximum number of accepted name changes allowed
// per self-id hash in a rolling hour.
const NameRateLimit = 5

// NameRateWindow is the rolling window the limiter counts over.
const NameRateWindow = time.Hour

// NameMap is the persistent self-id-hash -> display-name store. Readers
// see an eventually-consistent snapshot; writes are serialized by the
// caller (each accepted name change is applied by the session that
// received the control message).
type NameMap struct {
	mu     sync.RWMutex
	names  map[string]string
	ticks  map[string][]time.Time // rolling-window accept timestamps per self-id hash
	path   string
}

// NewNameMap returns an empty, in-memory-only name map.
func NewNameMap() *NameMap {
	return &NameMap{names: make(map[string]string), ticks: make(map[string][]time.Time)}
}

// Get returns the chosen display name for a self-id hash, if any.
func (n *NameMap) Get(selfIDHash string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	name, ok := n.names[selfIDHash]
	return name, ok
}

// Snapshot returns a copy of the full name map.
func (n *NameMap) Snapshot() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]string, len(n.names))
	for k, v := range n.names {
		out[k] = v
	}
	return out
}

// AllowChange reports whether selfIDHash has budget remaining under the
// rolling-hour rate limit, given the current time. It does not consume
// budget; Set records the tick once the change is accepted.
func (n *NameMap) AllowChange(selfIDHash string, now time.Time) (bool, time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	survivors := filterWindow(n.ticks[selfIDHash], now)
	n.ticks[selfIDHash] = survivors
	if len(survivors) < NameRateLimit {
		return true, 0
	}
	oldest := survivors[0]
	retryAfter := NameRateWindow - now.Sub(oldest)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}

func filterWindow(ticks []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-NameRateWindow)
	out := ticks[:0:0]
	for _, t := range ticks {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// Set records a new accepted name for selfIDHash and ticks the rate
// limiter.
func (n *NameMap) Set(selfIDHash, name string, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.names[selfIDHash] = name
	n.ticks[selfIDHash] = append(filterWindow(n.ticks[selfIDHash], now), now)
}

// Load populates the name map from a pretty-printed JSON file. A missing
// file is not an error (first boot).
func (n *NameMap) Load(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var names map[string]string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	n.names = names
	if n.names == nil {
		n.names = make(map[string]string)
	}
	return nil
}

// Save overwrites the backing file atomically (write to a temp file in
// the same directory, then rename) with the current contents.
func (n *NameMap) Save() error {
	n.mu.RLock()
	data, err := json.MarshalIndent(n.names, "", "  ")
	path := n.path
	n.mu.RUnlock()
	if err != nil || path == "" {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".names-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
