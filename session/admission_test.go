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
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/probewatch/metrics"
	"github.com/probeum/probewatch/model"
	"github.com/probeum/probewatch/moderation"
)

func newTestManager(cfg Config) *Manager {
	return NewManager(cfg, model.New(), moderation.NewSanitizer(nil), metrics.NewRegistry())
}

func TestAdmitRespectsPriorityThreshold(t *testing.T) {
	mgr := newTestManager(Config{})
	for i := 0; i < PriorityThreshold; i++ {
		mgr.sessions[uuidKey(i)] = &Session{}
	}
	assert.False(t, mgr.admit(false), "non-priority connections must stop at PriorityThreshold")
	assert.True(t, mgr.admit(true), "priority connections still fit in the reserved slice")
}

func TestAdmitRespectsCapacity(t *testing.T) {
	mgr := newTestManager(Config{})
	for i := 0; i < Capacity; i++ {
		mgr.sessions[uuidKey(i)] = &Session{}
	}
	assert.False(t, mgr.admit(true), "priority connections must stop at Capacity")
	assert.False(t, mgr.admit(false))
}

func uuidKey(i int) string {
	return fmt.Sprintf("sess-%d", i)
}

func TestPriorityTokenIsOneShot(t *testing.T) {
	mgr := newTestManager(Config{})
	tok := mgr.IssuePriorityToken()
	assert.True(t, mgr.redeemToken(tok))
	assert.False(t, mgr.redeemToken(tok), "a redeemed token must not redeem twice")
}

func TestIsPriorityViaKnownPeerIP(t *testing.T) {
	nm := model.New()
	nm.RecordPeer("203.0.113.9", 1.0, "ident-x", time.Now())
	mgr := NewManager(Config{}, nm, moderation.NewSanitizer(nil), metrics.NewRegistry())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	assert.True(t, mgr.isPriority(req, "203.0.113.9"))
}

func TestIsPriorityViaGatewayIP(t *testing.T) {
	mgr := newTestManager(Config{GatewayIPs: []string{"198.51.100.1"}})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, mgr.isPriority(req, "198.51.100.1"))
	assert.False(t, mgr.isPriority(req, "198.51.100.2"))
}

func TestClientIPPrefersForwardedForWhenTrusted(t *testing.T) {
	mgr := newTestManager(Config{TrustProxy: true})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.77, 10.0.0.1")
	assert.Equal(t, "203.0.113.77", mgr.ClientIP(req))
}

func TestClientIPIgnoresForwardedForWhenUntrusted(t *testing.T) {
	mgr := newTestManager(Config{TrustProxy: false})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.77")
	assert.Equal(t, "10.0.0.1", mgr.ClientIP(req))
}

func TestIsPriorityViaRedeemedToken(t *testing.T) {
	mgr := newTestManager(Config{})
	tok := mgr.IssuePriorityToken()
	req := httptest.NewRequest(http.MethodGet, "/ws?"+url.Values{"token": {tok}}.Encode(), nil)
	require.True(t, mgr.isPriority(req, "203.0.113.200"))
}
