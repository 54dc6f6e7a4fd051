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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/probewatch/fanout"
	"github.com/probeum/probewatch/internal/xlog"
	"github.com/probeum/probewatch/metrics"
	"github.com/probeum/probewatch/model"
	"github.com/probeum/probewatch/moderation"
)

// fakeClassifier lets control tests force an accept/reject verdict
// without depending on the local regex fallback's exact behavior.
type fakeClassifier struct {
	rejected bool
	reason   moderation.Reason
}

func (c fakeClassifier) Classify(ctx context.Context, name string) (string, moderation.Reason, bool, error) {
	if c.rejected {
		return "", c.reason, true, nil
	}
	return name, "", false, nil
}

func newBareSession(id uuid.UUID, selfIDHash string) *Session {
	log := xlog.Root().New("component", "session-test")
	return &Session{
		ID:         id,
		IP:         "203.0.113.1",
		AnonID:     "anon",
		SelfIDHash: selfIDHash,
		queue:      fanout.NewQueue(fanout.QueueCapacity, log),
		done:       make(chan struct{}),
	}
}

func TestHandleSetPeerNameAcceptsAndBroadcasts(t *testing.T) {
	mgr := NewManager(Config{}, model.New(), moderation.NewSanitizer(fakeClassifier{}), metrics.NewRegistry())
	self := newBareSession(uuid.New(), "self-hash-a")
	other := newBareSession(uuid.New(), "self-hash-b")
	mgr.sessions[self.ID.String()] = self
	mgr.sessions[other.ID.String()] = other

	mgr.handleSetPeerName(self, "NewName")

	selfMsgs := self.queue.Drain()
	require.Len(t, selfMsgs, 1)
	assert.Equal(t, "name_set_result", selfMsgs[0].Type)

	otherMsgs := other.queue.Drain()
	require.Len(t, otherMsgs, 1)
	assert.Equal(t, "peer_name_update", otherMsgs[0].Type)
	updateData := otherMsgs[0].Data.(map[string]interface{})
	assert.Equal(t, "self-hash-a", updateData["ip_hash"])
	assert.Equal(t, "NewName", updateData["name"])

	name, ok := mgr.model.Names().Get("self-hash-a")
	require.True(t, ok)
	assert.Equal(t, "NewName", name)
}

func TestHandleSetPeerNameRejectedByClassifierDoesNotBroadcast(t *testing.T) {
	mgr := NewManager(Config{}, model.New(), moderation.NewSanitizer(fakeClassifier{rejected: true, reason: moderation.ReasonPolitical}), metrics.NewRegistry())
	self := newBareSession(uuid.New(), "self-hash-c")
	other := newBareSession(uuid.New(), "self-hash-d")
	mgr.sessions[self.ID.String()] = self
	mgr.sessions[other.ID.String()] = other

	mgr.handleSetPeerName(self, "Whatever")

	selfMsgs := self.queue.Drain()
	require.Len(t, selfMsgs, 1)
	data := selfMsgs[0].Data.(map[string]interface{})
	assert.Equal(t, false, data["success"])
	assert.Equal(t, moderation.HumanReason(moderation.ReasonPolitical), data["error"])

	assert.Empty(t, other.queue.Drain(), "a rejected name change must never broadcast")
	_, ok := mgr.model.Names().Get("self-hash-c")
	assert.False(t, ok)
}

func TestHandleSetPeerNameRateLimited(t *testing.T) {
	mgr := NewManager(Config{}, model.New(), moderation.NewSanitizer(fakeClassifier{}), metrics.NewRegistry())
	self := newBareSession(uuid.New(), "self-hash-e")
	mgr.sessions[self.ID.String()] = self

	now := time.Now()
	for i := 0; i < model.NameRateLimit; i++ {
		mgr.model.Names().Set(self.SelfIDHash, "name", now)
	}
	self.queue.Drain()

	mgr.handleSetPeerName(self, "OneMore")
	msgs := self.queue.Drain()
	require.Len(t, msgs, 1)
	data := msgs[0].Data.(map[string]interface{})
	assert.Equal(t, false, data["success"])
	assert.Contains(t, data["error"], "Too many changes. Try again in")
}
