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

// Package metrics is a small in-process counter/gauge registry, exposed
// over HTTP in a minimal text form and optionally pushed to InfluxDB, in
// the spirit of the teacher's metrics.Config (cmd/gprobe/config.go
// applyMetricConfig) without pulling in a full TSDB for a process that
// already bounds its own in-memory history.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	client "github.com/influxdata/influxdb/client/v2"

	"github.com/probeum/probewatch/internal/xlog"
)

// Config mirrors the shape of the teacher's metrics.Config.
type Config struct {
	Enabled          bool
	EnabledExpensive bool
	HTTP             string
	Port             int
	EnableInfluxDB   bool
	InfluxDBEndpoint string
	InfluxDBDatabase string
	InfluxDBUsername string
	InfluxDBPassword string
	InfluxDBTags     string
}

// DefaultConfig matches the teacher's zero-value-as-default convention.
var DefaultConfig = Config{Enabled: true, HTTP: "127.0.0.1", Port: 6363}

// Registry holds a fixed set of named int64 gauges/counters.
type Registry struct {
	mu     sync.RWMutex
	values map[string]*int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{values: make(map[string]*int64)}
}

func (r *Registry) cell(name string) *int64 {
	r.mu.RLock()
	c, ok := r.values[name]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.values[name]; ok {
		return c
	}
	var v int64
	r.values[name] = &v
	return &v
}

// Set assigns a gauge's value.
func (r *Registry) Set(name string, v int64) { atomic.StoreInt64(r.cell(name), v) }

// Inc increments a counter by delta.
func (r *Registry) Inc(name string, delta int64) { atomic.AddInt64(r.cell(name), delta) }

// Snapshot returns a sorted copy of every metric name and value.
func (r *Registry) Snapshot() []struct {
	Name  string
	Value int64
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]struct {
		Name  string
		Value int64
	}, 0, len(r.values))
	for name, cell := range r.values {
		out = append(out, struct {
			Name  string
			Value int64
		}{name, atomic.LoadInt64(cell)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WriteText renders the registry in a minimal "name value\n" exposition
// format (not Prometheus-client-library output — just enough for a
// human or a scrape job to read, without taking on the client_golang
// dependency for a handful of gauges).
func (r *Registry) WriteText(w interface{ Write([]byte) (int, error) }) error {
	for _, m := range r.Snapshot() {
		if _, err := fmt.Fprintf(w, "%s %d\n", m.Name, m.Value); err != nil {
			return err
		}
	}
	return nil
}

// InfluxPusher periodically writes the registry's current values to
// InfluxDB, config-gated and best-effort: a write failure is logged and
// the next tick tries again.
type InfluxPusher struct {
	cfg Config
	reg *Registry
	log *xlog.Logger
}

// NewInfluxPusher returns a pusher for cfg/reg. Run is a no-op unless
// cfg.EnableInfluxDB is set.
func NewInfluxPusher(cfg Config, reg *Registry) *InfluxPusher {
	return &InfluxPusher{cfg: cfg, reg: reg, log: xlog.Root().New("component", "metrics")}
}

// Run pushes a points batch every interval until stop is closed.
func (p *InfluxPusher) Run(stop <-chan struct{}, interval time.Duration) {
	if !p.cfg.EnableInfluxDB {
		return
	}
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     p.cfg.InfluxDBEndpoint,
		Username: p.cfg.InfluxDBUsername,
		Password: p.cfg.InfluxDBPassword,
	})
	if err != nil {
		p.log.Warn("influxdb client init failed", "err", err)
		return
	}
	defer c.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.push(c)
		}
	}
}

func (p *InfluxPusher) push(c client.Client) {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: p.cfg.InfluxDBDatabase})
	if err != nil {
		p.log.Warn("influxdb batch init failed", "err", err)
		return
	}
	fields := make(map[string]interface{})
	for _, m := range p.reg.Snapshot() {
		fields[m.Name] = m.Value
	}
	pt, err := client.NewPoint("probewatch", nil, fields, time.Now())
	if err != nil {
		p.log.Warn("influxdb point init failed", "err", err)
		return
	}
	bp.AddPoint(pt)
	if err := c.Write(bp); err != nil {
		p.log.Warn("influxdb write failed", "err", err)
	}
}
