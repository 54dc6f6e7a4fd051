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
	"sync"
	"time"
)

// NetworkModel is the process-owned, mutable view of the overlay network.
// The interpreter and the cleanup sweeper are writers (they take the
// write lock); snapshot builders are readers (they take the read lock).
// Exactly one writer runs at a time, matching the serialization
// requirement of the single-loop design this was ported from.
type NetworkModel struct {
	mu sync.RWMutex

	peers     map[string]*Peer            // ip -> peer
	ipByAnon  map[string]string            // anon id -> ip
	ipByIdent map[string]string            // telemetry identity -> ip
	identByIP map[string]string            // ip -> telemetry identity

	edges map[Edge]struct{}

	subs map[string]*Subscription // contract key -> subscription

	contractStates map[string]map[string]*ContractStateEntry // contract key -> identity -> entry

	propagation map[string]*PropagationTimeline // contract key -> timeline

	transactions   []*Transaction
	txByID         map[string]*Transaction
	pendingOps     map[string]*PendingOp

	lifecycles map[string]*Lifecycle // identity -> lifecycle

	history []OutboundEvent

	transfers []TransferEvent

	opCounters map[string]*opCounter // op kind -> counters

	names *NameMap
}

type opCounter struct {
	requests  int64
	successes int64
	failures  int64
	latencies []time.Duration // capped at MaxLatencySamples
}

// New constructs an empty NetworkModel.
func New() *NetworkModel {
	return &NetworkModel{
		peers:          make(map[string]*Peer),
		ipByAnon:       make(map[string]string),
		ipByIdent:      make(map[string]string),
		identByIP:      make(map[string]string),
		edges:          make(map[Edge]struct{}),
		subs:           make(map[string]*Subscription),
		contractStates: make(map[string]map[string]*ContractStateEntry),
		propagation:    make(map[string]*PropagationTimeline),
		txByID:         make(map[string]*Transaction),
		pendingOps:     make(map[string]*PendingOp),
		lifecycles:     make(map[string]*Lifecycle),
		opCounters:     make(map[string]*opCounter),
		names:          NewNameMap(),
	}
}

func (m *NetworkModel) subscription(contractKey string, create bool) *Subscription {
	s, ok := m.subs[contractKey]
	if !ok {
		if !create {
			return nil
		}
		s = &Subscription{
			ContractKey: contractKey,
			Subscribers: make(map[string]struct{}),
			Tree:        make(map[string]map[string]struct{}),
			Seeding:     make(map[string]*SeedingState),
		}
		m.subs[contractKey] = s
	}
	return s
}

func (m *NetworkModel) counter(op string) *opCounter {
	c, ok := m.opCounters[op]
	if !ok {
		c = &opCounter{}
		m.opCounters[op] = c
	}
	return c
}

// Names exposes the peer-name map. It has its own internal locking (see
// §3 ownership: peer name state is shared, writer is the session that
// received the control message) and is safe to use independently of the
// NetworkModel's RWMutex.
func (m *NetworkModel) Names() *NameMap { return m.names }
