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

// Package httpapi wires the WebSocket dashboard endpoint and the
// operational /healthz and /metrics surfaces onto one httprouter mux,
// CORS-wrapped for browser dashboards served from a different origin.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/probeum/probewatch/metrics"
	"github.com/probeum/probewatch/session"
)

// Health is reported from /healthz.
type Health struct {
	Status        string `json:"status"`
	SessionCount  int    `json:"session_count"`
	LastRecordAge string `json:"last_record_age,omitempty"`
}

// HealthSource supplies the liveness signal the /healthz handler
// reports: how long ago the tailer last saw a telemetry record.
type HealthSource interface {
	LastRecordAge() (time.Duration, bool)
}

// New builds the root HTTP handler: GET /ws, and any path the router does
// not otherwise match, upgrades to the session WebSocket protocol;
// GET /healthz and GET /metrics serve operational
// state; everything is wrapped in a permissive CORS policy since the
// dashboard is typically served from a separate static origin.
func New(mgr *session.Manager, reg *metrics.Registry, health HealthSource) http.Handler {
	router := httprouter.New()

	router.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		mgr.HandleConnect(w, r)
	})
	router.NotFound = http.HandlerFunc(mgr.HandleConnect)

	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h := Health{Status: "ok", SessionCount: mgr.SessionCount()}
		if health != nil {
			if age, ok := health.LastRecordAge(); ok {
				h.LastRecordAge = age.Round(time.Second).String()
				if age > 2*time.Minute {
					h.Status = "stale"
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})

	router.GET("/metrics", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		reg.WriteText(w)
	})

	return cors.AllowAll().Handler(router)
}
