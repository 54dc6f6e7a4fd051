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

// Package supervisor wires the telemetry source, the network model, the
// session layer, and the HTTP surface into one concurrently-running
// process, and owns clean shutdown of all of it.
package supervisor

import (
	"context"
	"fmt"
	"hash"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/holiman/bloomfilter/v2"
	"golang.org/x/sync/errgroup"

	"github.com/probeum/probewatch/fanout"
	"github.com/probeum/probewatch/httpapi"
	"github.com/probeum/probewatch/interpret"
	"github.com/probeum/probewatch/internal/xlog"
	"github.com/probeum/probewatch/metrics"
	"github.com/probeum/probewatch/model"
	"github.com/probeum/probewatch/moderation"
	"github.com/probeum/probewatch/session"
	"github.com/probeum/probewatch/telemetry"
	"github.com/probeum/probewatch/telemetry/tail"
)

// CleanupInterval is how often the stale-peer sweep runs.
const CleanupInterval = 60 * time.Second

// handoffBloomBits/handoffBloomHashes size the handoff dedup filter for
// roughly one log-rotation's worth of records (tens of thousands) at a
// low false-positive rate; a false positive only costs one skipped
// duplicate-looking record at the warmup/live boundary, never a
// correctness violation elsewhere in the model.
const handoffBloomBits = 1 << 20
const handoffBloomHashes = 4

// Config configures a Supervisor.
type Config struct {
	TelemetryLogPath string
	NamesPath        string
	ListenAddr       string
	Session          session.Config
	Metrics          metrics.Config
}

// Supervisor owns every long-running goroutine in the process.
type Supervisor struct {
	cfg   Config
	model *model.NetworkModel
	mgr   *session.Manager
	tailer *tail.Tailer
	buf   *fanout.BatchBuffer
	flusher *fanout.Flusher
	reg   *metrics.Registry
	log   *xlog.Logger
	srv   *http.Server

	dedup *bloomfilter.Filter
}

// New wires every component together, ready for Run.
func New(cfg Config, san *moderation.Sanitizer) (*Supervisor, error) {
	nm := model.New()
	if cfg.NamesPath != "" {
		if err := nm.Names().Load(cfg.NamesPath); err != nil {
			return nil, fmt.Errorf("loading peer names: %w", err)
		}
	}

	reg := metrics.NewRegistry()
	mgr := session.NewManager(cfg.Session, nm, san, reg)
	buf := &fanout.BatchBuffer{}
	flusher := fanout.NewFlusher(buf, mgr)
	tailer := tail.New(cfg.TelemetryLogPath)

	dedup, err := bloomfilter.New(handoffBloomBits, handoffBloomHashes)
	if err != nil {
		return nil, fmt.Errorf("building handoff dedup filter: %w", err)
	}

	s := &Supervisor{
		cfg:     cfg,
		model:   nm,
		mgr:     mgr,
		tailer:  tailer,
		buf:     buf,
		flusher: flusher,
		reg:     reg,
		log:     xlog.Root().New("component", "supervisor"),
		dedup:   dedup,
	}
	s.srv = &http.Server{Addr: cfg.ListenAddr, Handler: httpapi.New(mgr, reg, tailer)}
	return s, nil
}

// Model exposes the network model, primarily for tests and CLI tooling.
func (s *Supervisor) Model() *model.NetworkModel { return s.model }

// Run performs the cold-start warmup replay, then runs the live tailer,
// batch flusher, cleanup sweeper, and HTTP/WebSocket server concurrently
// until ctx is canceled, returning the first error (if any) from any of
// them.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Info("warming up from existing telemetry log", "path", s.cfg.TelemetryLogPath)
	if err := tail.Warmup(s.cfg.TelemetryLogPath, s.warmupHandle); err != nil {
		s.log.Warn("warmup failed, continuing with live tail only", "err", err)
	}
	s.log.Info("warmup complete", "peers", len(s.model.GetNetworkState(time.Now()).Peers))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.tailer.Run(gctx, s.liveHandle)
		return nil
	})

	g.Go(func() error {
		stop := make(chan struct{})
		go func() { <-gctx.Done(); close(stop) }()
		s.flusher.Run(stop)
		return nil
	})

	g.Go(func() error {
		s.runCleanup(gctx)
		return nil
	})

	g.Go(func() error {
		stop := make(chan struct{})
		go func() { <-gctx.Done(); close(stop) }()
		metrics.NewInfluxPusher(s.cfg.Metrics, s.reg).Run(stop, 10*time.Second)
		return nil
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- s.srv.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.mgr.Shutdown()
			return s.srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})

	err := g.Wait()
	if saveErr := s.model.Names().Save(); saveErr != nil {
		s.log.Warn("saving peer names failed", "err", saveErr)
	}
	return err
}

// warmupHandle feeds a cold-start replay record into the model without
// broadcasting it live, and marks it seen in the handoff dedup filter so
// the first live-tail read of the same line (a common race when the
// tailer opens the file while warmup is still scanning its tail) is not
// double-counted.
func (s *Supervisor) warmupHandle(rec telemetry.Record, storeHistory bool) {
	s.dedup.Add(dedupHash(rec))
	interpret.Interpret(s.model, rec, storeHistory)
}

// liveHandle feeds a live-tailed record into the model and, unless it
// was already seen during warmup, fans it out to connected sessions.
func (s *Supervisor) liveHandle(rec telemetry.Record, storeHistory bool) {
	h := dedupHash(rec)
	seen := s.dedup.Contains(h)
	s.dedup.Add(h)

	result := interpret.Interpret(s.model, rec, storeHistory)
	s.reg.Inc("records_processed_total", 1)
	if seen || !result.HasEvent {
		return
	}
	if model.StreamEligible(result.Event.Kind) {
		s.buf.Append(*result.Event)
	}
}

func dedupHash(rec telemetry.Record) hash.Hash64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s|%s", rec.Timestamp.UnixNano(), rec.EventKind(), rec.AttrString("this_peer"), rec.AttrString("transaction_id"))
	return h
}

func (s *Supervisor) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			result := s.model.CleanupStalePeers(now)
			removedPending := s.model.CleanupStalePendingOps(now)
			removedProp := s.model.CleanupStalePropagation()
			if len(result.AnonIDs) > 0 {
				s.mgr.Broadcast(fanout.Message{Type: "peers_removed", Data: map[string]interface{}{
					"peers":       result.AnonIDs,
					"peer_ids":    result.Identities,
					"connections": result.EdgePairs,
				}})
			}
			if len(result.AnonIDs) > 0 || removedPending > 0 || removedProp > 0 {
				s.log.Debug("cleanup sweep", "stale_peers", len(result.AnonIDs), "stale_pending_ops", removedPending, "stale_propagation", removedProp)
			}
		}
	}
}
